//go:build windows

package main

/*
(c) 2024-2026 Zayn Otley - GPLv3 or later
*/

import (
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/zaynotley/pcx86core"
)

// UARTConsoleHost is the Windows variant: os.Stdin has no non-blocking
// read mode here, so it relies on a plain blocking Read in its goroutine,
// same as terminal_host_windows.go.
type UARTConsoleHost struct {
	uart         *pcx86.UART
	stopCh       chan struct{}
	done         chan struct{}
	stopped      sync.Once
	fd           int
	oldTermState *term.State
}

func NewUARTConsoleHost(u *pcx86.UART) *UARTConsoleHost {
	return &UARTConsoleHost{
		uart:   u,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (h *UARTConsoleHost) Start() {
	h.fd = int(os.Stdin.Fd())

	oldState, err := term.MakeRaw(h.fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "uart_console_host: failed to set raw mode: %v\n", err)
		close(h.done)
		return
	}
	h.oldTermState = oldState

	go func() {
		defer close(h.done)
		buf := make([]byte, 1)

		for {
			select {
			case <-h.stopCh:
				return
			default:
			}

			n, err := os.Stdin.Read(buf)
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
			if err != nil {
				return
			}
			if n == 0 {
				time.Sleep(5 * time.Millisecond)
			}
		}
	}()
}

func (h *UARTConsoleHost) Stop() {
	h.stopped.Do(func() {
		close(h.stopCh)
	})
	<-h.done
	if h.oldTermState != nil {
		_ = term.Restore(h.fd, h.oldTermState)
		h.oldTermState = nil
	}
}

func (h *UARTConsoleHost) PumpOutput() {
	for {
		b, ok := h.uart.DrainTX()
		if !ok {
			return
		}
		os.Stdout.Write([]byte{b})
	}
}
