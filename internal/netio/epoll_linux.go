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

type epollPoller struct {
	epfd int
}

func newPoller() (poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollPoller{epfd: epfd}, nil
}

func toEpoll(ev Flag) uint32 {
	var e uint32
	if ev&In != 0 {
		e |= unix.EPOLLIN
	}
	if ev&Out != 0 {
		e |= unix.EPOLLOUT
	}
	if ev&Err != 0 {
		e |= unix.EPOLLERR
	}
	if ev&Hup != 0 {
		e |= unix.EPOLLHUP
	}
	if ev&OneShot != 0 {
		e |= unix.EPOLLONESHOT
	}
	return e
}

func fromEpoll(e uint32) Flag {
	var ev Flag
	if e&unix.EPOLLIN != 0 {
		ev |= In
	}
	if e&unix.EPOLLOUT != 0 {
		ev |= Out
	}
	if e&unix.EPOLLERR != 0 {
		ev |= Err
	}
	if e&unix.EPOLLHUP != 0 {
		ev |= Hup
	}
	return ev
}

func (p *epollPoller) ctl(op, fd int, ev Flag) error {
	e := unix.EpollEvent{Events: toEpoll(ev), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, op, fd, &e)
}

func (p *epollPoller) Add(fd int, ev Flag) error {
	return p.ctl(unix.EPOLL_CTL_ADD, fd, ev)
}

func (p *epollPoller) Mod(fd int, ev Flag) error {
	return p.ctl(unix.EPOLL_CTL_MOD, fd, ev)
}

func (p *epollPoller) Del(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) Wait(events []Event, timeoutMs int) (int, error) {
	evs := make([]unix.EpollEvent, len(events))

	n, err := unix.EpollWait(p.epfd, evs, timeoutMs)
	if err != nil {
		return 0, err
	}

	for i := range n {
		fd := int(evs[i].Fd)
		events[i] = Event{
			FD:     fd,
			Events: fromEpoll(evs[i].Events),
			T:      lookup(fd),
		}
	}
	return n, nil
}

// acceptConn accepts one pending connection with the nonblock and cloexec
// flags already applied.
func acceptConn(fd int) (int, error) {
	nfd, _, err := unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, err
	}
	return nfd, nil
}
