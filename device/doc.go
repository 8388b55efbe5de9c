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

// Package device presents topic nodes through a file-like surface:
// paths under /obj, integer handles, and read/write/ioctl/poll
// operations.  A Master device at /obj/_orb_master creates nodes and
// allocates instance numbers.
//
// The handle table is the shim's own; nothing here touches OS file
// descriptors.
package device
