// Command kernelsim is a hosted, interactive demonstration of the echo
// scenario (spec.md §8, scenario 1) running against internal/hal's pure-Go
// simulation instead of real hardware. It puts the terminal in raw mode
// the way smoynes-elsie's cmd/internal/tty.Console does, feeds typed
// bytes into the kernel's serial-RX path one at a time, and writes back
// whatever the kernel's dispatcher enqueues for transmission.
//
// It is a demonstration harness, not a general program loader: the one
// thread it creates always runs the same GETC/STR_WRITE echo loop the
// scenario describes, driven from here rather than from any instruction
// stream the kernel itself interprets.
package main

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"armkernel/internal/ctxswitch"
	"armkernel/internal/hal"
	"armkernel/internal/klog"
	"armkernel/internal/mm"
	"armkernel/internal/sched"
	"armkernel/internal/thread"
	"armkernel/internal/trap"
)

// setTerminalParams forces byte-at-a-time, no-timeout reads (VMIN=1,
// VTIME=0), the way tty.Console.setTerminalParams does before it starts
// reading raw bytes off stdin.
func setTerminalParams(fd int, vmin, vtime byte) error {
	termIO, err := unix.IoctlGetTermios(fd, getTermiosIoctl)
	if err != nil {
		return err
	}

	termIO.Cc[unix.VMIN] = vmin
	termIO.Cc[unix.VTIME] = vtime

	return unix.IoctlSetTermios(fd, setTermiosIoctl, termIO)
}

func main() {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		fmt.Fprintln(os.Stderr, "kernelsim: stdin is not a terminal; nothing to echo")
		os.Exit(1)
	}

	saved, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kernelsim: %s\n", err)
		os.Exit(1)
	}
	defer term.Restore(fd, saved)

	_ = syscall.SetNonblock(fd, false)
	if err := setTerminalParams(fd, 1, 0); err != nil {
		fmt.Fprintf(os.Stderr, "kernelsim: %s\n", err)
		os.Exit(1)
	}

	fa := mm.NewFrameAllocator()
	table := thread.NewTable(0x1000, fa)
	scheduler := sched.New(table)
	sim := hal.NewSim()
	log := klog.NewFormattedLogger(os.Stderr)

	kernel := trap.New(table, scheduler, fa, sim, sim, sim, sim, log)

	worker, ok := table.Create(0x2000, 0, false, false, fa)
	if !ok {
		fmt.Fprintln(os.Stderr, "kernelsim: failed to create echo worker")
		return
	}
	table.Activate(worker.ID)

	fmt.Fprint(os.Stdout, "kernelsim: echoing stdin back to stdout, ctrl-d to exit\r\n")

	var tf ctxswitch.TrapFrame
	buf := make([]byte, 1)

	for {
		n, err := os.Stdin.Read(buf)
		if n == 0 || err != nil {
			break
		}
		b := buf[0]
		if b == 0x04 { // ctrl-d
			break
		}

		table.SetCurrentSlot(worker.ID - 1)
		kernel.HandleSoftwareInterrupt(trap.Getc, &tf, nil)

		sim.InjectRX([]byte{b})
		kernel.HandleInterrupt(&tf)

		scheduler.Select()
		kernel.HandleSoftwareInterrupt(trap.StrWrite, &tf, []byte{b})
		kernel.HandleInterrupt(&tf) // drain the queued byte onto the wire

		if out := sim.Transmitted(); len(out) > 0 {
			os.Stdout.Write(out[len(out)-1:])
		}
	}

	fmt.Fprint(os.Stdout, "\r\nkernelsim: exiting\r\n")
}
