/* Copyright 2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package device

import "github.com/Comcast/orb/core"

// Errno numbers reported at the device boundary.  These are the
// conventional values; nothing here depends on the host OS agreeing.
const (
	EPERM  = 1
	ENOENT = 2
	EIO    = 5
	EAGAIN = 11
	ENOMEM = 12
	EBUSY  = 16
	EEXIST = 17
	EINVAL = 22
	EBADF  = 9
)

// Errno maps a bus error to its errno number.  nil maps to zero;
// anything unrecognized maps to EIO.
func Errno(err error) int {
	switch err {
	case nil:
		return 0
	case core.Permission:
		return EPERM
	case core.NotFound:
		return ENOENT
	case core.ShortIO:
		return EIO
	case core.NoData:
		return EAGAIN
	case core.NoMem:
		return ENOMEM
	case core.AlreadyStarted:
		return EBUSY
	case core.Exists:
		return EEXIST
	case core.Invalid:
		return EINVAL
	case ErrBadHandle:
		return EBADF
	}
	return EIO
}
