/*
 * errors.go, part of crystnet.
 *
 * Copyright 2026 The crystnet developers
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 */

package crystnet

// Error is the interface implemented by every error this library returns.
// The Decorate method allows adding and retrieving context while the error
// travels up the call stack, without changing its type or wrapping it around
// something else.
type Error interface {
	Error() string
	Decorate(string) []string //Decorate adds the given string to the decoration trail and returns the trail. An empty string only retrieves the current trail.
}

//CError is the concrete error used across the library. The decoration slice
//contains the names of the functions in the calling stack, outermost last,
//each optionally followed by extra information in the format
//"FunctionName: extra info".
type CError struct {
	msg  string
	deco []string
}

func (err CError) Error() string { return err.msg }

//Decorate adds deco to the decoration trail, unless empty, and returns the
//current trail.
func (err CError) Decorate(deco string) []string {
	if deco != "" {
		err.deco = append(err.deco, deco)
	}
	return err.deco
}

//errDecorate decorates err if it implements Error, and otherwise wraps it in
//a CError with the decoration already applied.
func errDecorate(err error, caller string) error {
	if err == nil {
		return nil
	}
	err2, ok := err.(Error)
	if !ok {
		return CError{err.Error(), []string{caller}}
	}
	err2.Decorate(caller)
	return err2
}
