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

package cascade

import (
	"net"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/cascadelang/cascade/internal/netio"
	"github.com/cascadelang/cascade/internal/task"
)

// ListenConfig is the option set NetListen applies while setting a
// listening socket up. The zero value enables reuse-addr/port and cloexec,
// matching what the runtime's own servers want.
type ListenConfig struct {
	NoCloseOnExec bool
	NoReuseAddr   bool
	NoReusePort   bool

	TCPNoDelay     bool
	TCPDeferAccept int // seconds, Linux only, 0 = off
	TCPFastOpen    int // queue length, Linux only, 0 = off
	KeepAlive      bool
	RcvBuf         int // bytes, 0 = kernel default
	SndBuf         int // bytes, 0 = kernel default
	IPv6Only       bool
}

// NetListen creates a non-blocking TCP listener bound to addr:port.
// Returns the listening descriptor, -1 on error; the failing call's error
// is not recorded.
func NetListen(addr string, port uint16, backlog int, cfg *ListenConfig) int {
	if cfg == nil {
		cfg = &ListenConfig{}
	}

	sa, family := resolveSockaddr(addr, port)
	if sa == nil {
		return -1
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1
	}

	fail := func() int {
		unix.Close(fd)
		return -1
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		return fail()
	}
	if !cfg.NoCloseOnExec {
		unix.CloseOnExec(fd)
	}

	if !cfg.NoReuseAddr {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	}
	if !cfg.NoReusePort {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	}
	if cfg.RcvBuf > 0 {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, cfg.RcvBuf)
	}
	if cfg.SndBuf > 0 {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, cfg.SndBuf)
	}
	if cfg.KeepAlive {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
	}
	if family == unix.AF_INET6 && cfg.IPv6Only {
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 1)
	}

	if err := unix.Bind(fd, sa); err != nil {
		return fail()
	}

	// TCP options after bind, before listen.
	if cfg.TCPNoDelay {
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	}
	setListenPlatformOpts(fd, cfg)

	bl := backlog
	if bl <= 0 {
		bl = unix.SOMAXCONN
	}
	if err := unix.Listen(fd, bl); err != nil {
		return fail()
	}

	return fd
}

// NetDial connects to addr:port, driving the async connect through the
// poller. Returns the connected descriptor, -1 on error.
func NetDial(addr string, port uint16) int {
	sa, family := resolveSockaddr(addr, port)
	if sa == nil {
		return -1
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1
	}

	fail := func() int {
		unix.Close(fd)
		return -1
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		return fail()
	}
	unix.CloseOnExec(fd)

	err = unix.Connect(fd, sa)
	if err == nil {
		return fd // connected immediately
	}
	if err != unix.EINPROGRESS {
		return fail()
	}

	t := currentTask("net_dial")
	t.IO.Reset(fd, nil, 0, 0, task.OpConnect)
	if netio.Submit(t, netio.Out) != nil {
		return fail()
	}

	// The worker already checked SO_ERROR; double-check the terminal
	// state before handing the socket out.
	if t.IO.DoneN < 0 {
		return fail()
	}
	if soerr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR); err != nil || soerr != 0 {
		return fail()
	}

	return fd
}

// NetAccept accepts one connection on a listening descriptor, suspending
// the calling task until a peer arrives. Returns the accepted descriptor
// (non-blocking, cloexec), -1 on error.
func NetAccept(listenFD int) int {
	t := currentTask("net_accept")

	t.IO.Reset(listenFD, nil, 0, 0, task.OpAccept)
	if netio.Submit(t, netio.In) != nil {
		return -1
	}

	return t.IO.DoneN
}

// NetRead reads up to length bytes from fd into buf, suspending the
// calling task. The read completes on a full buffer or on EOF; the byte
// count is returned, -1 on error.
func NetRead(fd int, buf *Array, length int) int {
	if buf == nil || length <= 0 || int64(length) > buf.Length {
		return -1
	}

	t := currentTask("net_read")

	t.IO.Reset(fd, unsafe.Pointer(buf.Data), length, 0, task.OpRead)
	if netio.Submit(t, netio.In) != nil {
		return -1
	}

	return t.IO.DoneN
}

// NetWrite writes length bytes from buf to fd, suspending the calling task
// until every byte is out or the connection fails. Returns the byte count,
// -1 on error.
func NetWrite(fd int, buf *Array, length int) int {
	if buf == nil || length <= 0 || int64(length) > buf.Length {
		return -1
	}

	t := currentTask("net_write")

	t.IO.Reset(fd, unsafe.Pointer(buf.Data), length, 0, task.OpWrite)
	if netio.Submit(t, netio.Out) != nil {
		return -1
	}

	return t.IO.DoneN
}

// resolveSockaddr turns a literal or resolvable host into a bindable
// sockaddr. Empty and "0.0.0.0" mean the IPv4 wildcard.
func resolveSockaddr(addr string, port uint16) (unix.Sockaddr, int) {
	if addr == "" {
		return &unix.SockaddrInet4{Port: int(port)}, unix.AF_INET
	}

	ip := net.ParseIP(addr)
	if ip == nil {
		ips, err := net.LookupIP(addr)
		if err != nil || len(ips) == 0 {
			return nil, 0
		}
		ip = ips[0]
	}

	if ip4 := ip.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: int(port)}
		copy(sa.Addr[:], ip4)
		return sa, unix.AF_INET
	}

	sa := &unix.SockaddrInet6{Port: int(port)}
	copy(sa.Addr[:], ip.To16())
	return sa, unix.AF_INET6
}
