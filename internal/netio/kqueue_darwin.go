// Copyright 2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package netio

import (
	"golang.org/x/sys/unix"
)

type kqueuePoller struct {
	kq int
}

func newPoller() (poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(kq)
	return &kqueuePoller{kq: kq}, nil
}

// register installs one-shot filters matching ev. Kqueue keys events by
// (fd, filter), so In and Out become separate kevents.
func (p *kqueuePoller) register(fd int, ev Flag) error {
	var changes []unix.Kevent_t

	flags := uint16(unix.EV_ADD | unix.EV_ONESHOT)
	if ev&In != 0 {
		changes = append(changes, unix.Kevent_t{
			Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags,
		})
	}
	if ev&Out != 0 {
		changes = append(changes, unix.Kevent_t{
			Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags,
		})
	}

	_, err := unix.Kevent(p.kq, changes, nil, nil)
	return err
}

func (p *kqueuePoller) Add(fd int, ev Flag) error { return p.register(fd, ev) }

// Mod is Add: EV_ADD on an existing kevent updates it in place.
func (p *kqueuePoller) Mod(fd int, ev Flag) error { return p.register(fd, ev) }

func (p *kqueuePoller) Del(fd int) error {
	// One-shot events self-delete on delivery; removing the remaining
	// filters may legitimately find nothing there.
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	for _, ch := range changes {
		if _, err := unix.Kevent(p.kq, []unix.Kevent_t{ch}, nil, nil); err != nil &&
			err != unix.ENOENT {
			return err
		}
	}
	return nil
}

func (p *kqueuePoller) Wait(events []Event, timeoutMs int) (int, error) {
	kevs := make([]unix.Kevent_t, len(events))

	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMs) * 1e6)
		ts = &t
	}

	n, err := unix.Kevent(p.kq, nil, kevs, ts)
	if err != nil {
		return 0, err
	}

	for i := range n {
		fd := int(kevs[i].Ident)

		var ev Flag
		switch kevs[i].Filter {
		case unix.EVFILT_READ:
			ev |= In
		case unix.EVFILT_WRITE:
			ev |= Out
		}
		if kevs[i].Flags&unix.EV_ERROR != 0 {
			ev |= Err
		}
		if kevs[i].Flags&unix.EV_EOF != 0 {
			ev |= Hup
		}

		events[i] = Event{FD: fd, Events: ev, T: lookup(fd)}
	}
	return n, nil
}

// acceptConn accepts one pending connection, applying nonblock and cloexec
// by hand: Darwin has no accept4.
func acceptConn(fd int) (int, error) {
	nfd, _, err := unix.Accept(fd)
	if err != nil {
		return -1, err
	}
	if err := unix.SetNonblock(nfd, true); err != nil {
		unix.Close(nfd)
		return -1, err
	}
	unix.CloseOnExec(nfd)
	return nfd, nil
}
