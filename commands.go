// Copyright 2026 The iaxolab-scope Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package scope

import (
	"fmt"
)

// SCPI commands issued by the frame reader. Only the minimal set needed to
// read a frame is covered; acquisition setup is left to the operator.
const (
	cmdIdentity       = "*IDN?"
	cmdSource         = ":WAV:SOUR"
	cmdSourceQuery    = ":WAV:SOUR?"
	cmdStart          = ":WAV:STAR"
	cmdPoints         = ":WAV:POIN"
	cmdSequence       = ":WAV:SEQ"
	cmdWidth          = ":WAV:WIDT"
	cmdWidthQuery     = ":WAV:WIDT?"
	cmdPreamble       = ":WAV:PRE?"
	cmdData           = ":WAV:DATA?"
	cmdMaxPointsQuery = ":WAV:MAXP?"
)

func startCommand(point int) string {
	return fmt.Sprintf("%s %d", cmdStart, point)
}

func pointsCommand(points int) string {
	return fmt.Sprintf("%s %d", cmdPoints, points)
}

func sequenceCommand(frame int) string {
	return fmt.Sprintf("%s %d,0", cmdSequence, frame)
}

func widthCommand(w SampleWidth) string {
	return fmt.Sprintf("%s %s", cmdWidth, w)
}

func sourceCommand(channel int) string {
	return fmt.Sprintf("%s C%d", cmdSource, channel)
}
