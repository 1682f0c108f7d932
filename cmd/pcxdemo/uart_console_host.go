//go:build !windows

package main

/*
(c) 2024-2026 Zayn Otley - GPLv3 or later
*/

import (
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/zaynotley/pcx86core"
)

// UARTConsoleHost reads raw stdin and feeds bytes into a UART's receive
// FIFO, and drains the UART's transmit FIFO to stdout. Adapted from
// terminal_host.go's TerminalHost, generalized from a single TERM_IN/
// TERM_KEY_IN MMIO device to the COM1 UART's DeliverByte/DrainTX pair.
type UARTConsoleHost struct {
	uart         *pcx86.UART
	stopCh       chan struct{}
	done         chan struct{}
	stopped      sync.Once
	fd           int
	nonblockSet  bool
	oldTermState *term.State
}

func NewUARTConsoleHost(u *pcx86.UART) *UARTConsoleHost {
	return &UARTConsoleHost{
		uart:   u,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start puts stdin into raw, non-blocking mode and begins feeding bytes
// into the UART's receive path in a goroutine. Call Stop() to restore
// stdin.
func (h *UARTConsoleHost) Start() {
	h.fd = int(os.Stdin.Fd())

	oldState, err := term.MakeRaw(h.fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "uart_console_host: failed to set raw mode: %v\n", err)
		close(h.done)
		return
	}
	h.oldTermState = oldState

	if err := syscall.SetNonblock(h.fd, true); err != nil {
		fmt.Fprintf(os.Stderr, "uart_console_host: failed to set nonblocking stdin: %v\n", err)
		_ = term.Restore(h.fd, h.oldTermState)
		h.oldTermState = nil
		close(h.done)
		return
	}
	h.nonblockSet = true

	go func() {
		defer close(h.done)
		buf := make([]byte, 1)

		for {
			select {
			case <-h.stopCh:
				return
			default:
			}

			n, err := syscall.Read(h.fd, buf)
			if n > 0 {
				b := buf[0]
				if b == '\r' {
					b = '\n'
				}
				if b == 0x7F {
					b = 0x08
				}
				h.uart.DeliverByte(b)
			}
			if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			if err != nil {
				return
			}
			if n == 0 {
				time.Sleep(5 * time.Millisecond)
			}
		}
	}()
}

// Stop terminates the stdin reading goroutine and restores stdin to
// blocking, cooked mode.
func (h *UARTConsoleHost) Stop() {
	h.stopped.Do(func() {
		close(h.stopCh)
	})
	<-h.done
	if h.nonblockSet {
		_ = syscall.SetNonblock(h.fd, false)
		h.nonblockSet = false
	}
	if h.oldTermState != nil {
		_ = term.Restore(h.fd, h.oldTermState)
		h.oldTermState = nil
	}
}

// PumpOutput drains every transmitted byte the guest has written to the
// UART and writes it to stdout. Call periodically from the main loop.
func (h *UARTConsoleHost) PumpOutput() {
	for {
		b, ok := h.uart.DrainTX()
		if !ok {
			return
		}
		os.Stdout.Write([]byte{b})
	}
}
