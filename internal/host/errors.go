// SPDX-License-Identifier: MIT
package host

import "errors"

var (
	ErrNoProcessor       = errors.New("no processor selected")
	ErrNoSettings        = errors.New("stream settings not applied")
	ErrAlreadyAcquiring  = errors.New("already acquiring")
	ErrNotAcquiring      = errors.New("not acquiring")
	ErrAlreadyRecording  = errors.New("already recording")
	ErrAcquisitionActive = errors.New("settings cannot change during acquisition")
	ErrRecordingDir      = errors.New("recording directory is not writable")
	ErrBlockShape        = errors.New("block does not match stream settings")
)
