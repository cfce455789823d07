// Command mtkflash flashes and dumps the eMMC storage of MT8590-based
// devices over USB by speaking the MediaTek BootROM/Preloader and Download
// Agent wire protocols.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/atotto/clipboard"
	"github.com/google/gousb"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/unknown321/mediatek-flash-tool/internal/config"
	"github.com/unknown321/mediatek-flash-tool/internal/mtk"
	"github.com/unknown321/mediatek-flash-tool/internal/statusapi"
	"github.com/unknown321/mediatek-flash-tool/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// exit codes per spec.md §6: 0 success; 1 usage/input error; 2 protocol or
// device error.
const (
	exitOK       = 0
	exitUsage    = 1
	exitProtocol = 2
)

type fileOperation struct {
	op   mtk.Operation
	file *os.File
	path string
	size int64
}

type arguments struct {
	initialState    mtk.DeviceState
	daPath          string
	reboot          bool
	verbose         bool
	interactive     bool
	interactiveUI   bool
	doctor          bool
	statusAddr      string
	copyID          bool
	operations      []fileOperation
}

func run(argv []string) int {
	args, err := parseArgs(argv)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitUsage
	}

	if args.doctor {
		code := runDoctor(args)
		for _, o := range args.operations {
			o.file.Close()
		}
		return code
	}

	code := doRun(args)
	for _, o := range args.operations {
		o.file.Close()
	}

	if args.interactive {
		waitForEnter()
	}
	return code
}

func parseArgs(argv []string) (*arguments, error) {
	args := &arguments{interactive: true}

	var curAddr, curLen uint64
	haveDA := false

	for i := 0; i < len(argv); i++ {
		a := argv[i]
		next := func() (string, error) {
			i++
			if i >= len(argv) {
				return "", fmt.Errorf("%s requires an argument", a)
			}
			return argv[i], nil
		}

		switch a {
		case "-2", "--da-stage2":
			args.initialState = mtk.StateStage2
		case "-P", "--preloader":
			args.initialState = mtk.StatePreloader
		case "-d", "--download-agent":
			v, err := next()
			if err != nil {
				return nil, err
			}
			args.daPath = v
			haveDA = true
		case "-a", "--address":
			v, err := next()
			if err != nil {
				return nil, err
			}
			n, err := parseUint(v)
			if err != nil {
				return nil, fmt.Errorf("bad address %q: %w", v, err)
			}
			curAddr = n
		case "-l", "--length":
			v, err := next()
			if err != nil {
				return nil, err
			}
			n, err := parseUint(v)
			if err != nil {
				return nil, fmt.Errorf("bad length %q: %w", v, err)
			}
			curLen = n
		case "-D", "--dump":
			v, err := next()
			if err != nil {
				return nil, err
			}
			if curLen == 0 {
				return nil, fmt.Errorf("zero-length operation")
			}
			f, err := os.Create(v)
			if err != nil {
				return nil, fmt.Errorf("opening dump target %q: %w", v, err)
			}
			args.operations = append(args.operations, fileOperation{
				op:   mtk.Operation{Kind: mtk.OpDump, Address: curAddr, Length: curLen},
				file: f,
				path: v,
			})
		case "-F", "--flash":
			v, err := next()
			if err != nil {
				return nil, err
			}
			if curLen == 0 {
				return nil, fmt.Errorf("zero-length operation")
			}
			f, err := os.Open(v)
			if err != nil {
				return nil, fmt.Errorf("opening flash source %q: %w", v, err)
			}
			info, err := f.Stat()
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("stat %q: %w", v, err)
			}
			if uint64(info.Size()) < curLen {
				f.Close()
				return nil, fmt.Errorf("flash source %q is %d bytes, shorter than requested length %d", v, info.Size(), curLen)
			}
			args.operations = append(args.operations, fileOperation{
				op:   mtk.Operation{Kind: mtk.OpFlash, Address: curAddr, Length: curLen},
				file: f,
				path: v,
				size: info.Size(),
			})
		case "-R", "--reboot":
			args.reboot = true
		case "-v", "--verbose":
			args.verbose = true
		case "-n", "--no-interactive":
			args.interactive = false
		case "-i", "--interactive-ui":
			args.interactiveUI = true
		case "-doctor":
			args.doctor = true
		case "-status-addr":
			v, err := next()
			if err != nil {
				return nil, err
			}
			args.statusAddr = v
		case "-copy-id":
			args.copyID = true
		case "-h", "--help":
			printUsage()
			os.Exit(exitOK)
		default:
			return nil, fmt.Errorf("unrecognized flag %q", a)
		}
	}

	if args.doctor {
		return args, nil
	}

	if !haveDA && args.initialState != mtk.StateStage2 {
		return nil, fmt.Errorf("--download-agent is required unless --da-stage2 is given")
	}
	if len(args.operations) == 0 {
		return nil, fmt.Errorf("at least one operation (--dump or --flash) is required")
	}

	return args, nil
}

func parseUint(s string) (uint64, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: mtkflash [flags]

  -2, --da-stage2              device already in Stage-2; skip phases
  -P, --preloader               device in Preloader; skip initial sync
  -d, --download-agent FILE     DA container path (required unless --da-stage2)
  -a, --address ADDR            address (decimal or 0x-prefixed hex); sets current address
  -l, --length LEN              length, same format; sets current length
  -D, --dump FILE                emit a dump operation at current (address, length) into FILE
  -F, --flash FILE                emit a flash operation at current (address, length) from FILE
  -R, --reboot                   after operations, trigger reboot
  -v, --verbose                  verbose tracing
  -n, --no-interactive           suppress press-enter-to-exit
  -i, --interactive-ui           show an interactive progress UI
  -doctor                        check DA container, file sizes and free space without USB, then exit
  -status-addr ADDR               serve JSON progress on ADDR (e.g. 127.0.0.1:8585)
  -copy-id                        copy device identity to the clipboard when done
  -h, --help                      usage`)
}

func waitForEnter() {
	fmt.Fprintln(os.Stderr, "Press enter to exit")
	bufio.NewReader(os.Stdin).ReadString('\n')
}

func doRun(args *arguments) int {
	cfg, err := config.Load(
		config.WithVerbose(args.verbose),
		config.WithInteractive(args.interactive),
		config.WithStatusAddr(args.statusAddr),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error: loading configuration:", err)
		return exitUsage
	}

	var container *mtk.Container
	if args.daPath != "" {
		f, err := os.Open(args.daPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error: opening DA container:", err)
			return exitUsage
		}
		defer f.Close()
		container, err = mtk.Load(f)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error: loading DA container:", err)
			return exitUsage
		}
	}

	fmt.Println("Waiting for MediaTek device...")
	fmt.Println("1. Detach cable and turn off the device")
	fmt.Println("2. Hold Play and Volume Down buttons")
	fmt.Println("3. Insert cable")
	fmt.Println("4. Release the buttons after successful detection")

	ep, err := mtk.OpenUSBEndpoints(gousb.ID(mtk.USBVendorID), cfg.Timeout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error: detecting device:", err)
		return exitProtocol
	}
	defer ep.Close()

	transport := mtk.NewTransport(ep, cfg.PktSize, cfg.Verbose)

	ops := make([]mtk.Operation, len(args.operations))
	for i, fo := range args.operations {
		if cfg.Verbose && fo.op.Kind == mtk.OpFlash {
			fmt.Printf("flash source is %d bytes (%d requested)\n", fo.size, fo.op.Length)
		}
		handler := &hostFileHandler{file: fo.file}
		ops[i] = fo.op
		ops[i].Handler = handler
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var status *statusapi.Server
	if cfg.StatusAddr != "" {
		status = statusapi.New(cfg.StatusAddr)
		go status.Run(ctx)
	}

	var program *tea.Program
	if args.interactiveUI {
		program = tea.NewProgram(tui.NewModel(""), tea.WithAltScreen())
	}

	var report mtk.ProgressFunc = func(ev mtk.ProgressEvent) {
		if program != nil {
			program.Send(tui.ProgressMsg(ev))
		} else {
			fmt.Printf("[%s] %d/%d bytes\n", ev.Phase, ev.Offset, ev.Total)
		}
		if status != nil {
			status.Update(ev)
		}
	}

	o := mtk.NewOrchestrator(transport, container, ops, args.reboot, report)

	var runErr error
	if args.interactiveUI {
		runErr = runWithTUI(ctx, program, o, args.initialState)
	} else {
		runErr = runCancelable(ctx, o, args.initialState)
	}

	if status != nil {
		status.Finish(runErr)
	}

	if runErr == nil && args.copyID {
		id := o.Identity()
		_ = clipboard.WriteAll(fmt.Sprintf("hw_code=0x%04x hw_subcode=0x%04x hw_ver=0x%04x sw_ver=0x%04x",
			id.HWCode, id.HWSubCode, id.HWVer, id.SWVer))
	}

	if runErr != nil {
		fmt.Fprintln(os.Stderr, "error:", runErr)
		return classifyExit(runErr)
	}

	fmt.Println("done.")
	return exitOK
}

func runCancelable(ctx context.Context, o *mtk.Orchestrator, initial mtk.DeviceState) error {
	done := make(chan error, 1)
	go func() { done <- o.Run(initial) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("interrupted: %w", ctx.Err())
	}
}

func runWithTUI(ctx context.Context, program *tea.Program, o *mtk.Orchestrator, initial mtk.DeviceState) error {
	errCh := make(chan error, 1)
	go func() {
		err := runCancelable(ctx, o, initial)
		program.Send(tui.DoneMsg{Err: err})
		errCh <- err
	}()

	if _, err := program.Run(); err != nil {
		return err
	}
	return <-errCh
}

func classifyExit(err error) int {
	switch err.(type) {
	case *mtk.UsageError, *mtk.ContainerError:
		return exitUsage
	default:
		return exitProtocol
	}
}

// hostFileHandler implements mtk.IOHandler against a plain *os.File, the
// boundary between the core protocol engine and on-host file I/O (spec.md
// §1 "Out of scope: ... filesystem I/O against the on-host image files").
type hostFileHandler struct {
	file *os.File
}

func (h *hostFileHandler) ProvideTx(offset uint64, buf []byte) error {
	_, err := h.file.ReadAt(buf, int64(offset))
	return err
}

func (h *hostFileHandler) ConsumeRx(offset uint64, buf []byte) error {
	_, err := h.file.WriteAt(buf, int64(offset))
	return err
}

// runDoctor runs the preflight checks SPEC_FULL.md §4.9 calls for: it never
// touches USB. It verifies the DA container opens and parses, that every
// Flash source is at least as large as its requested length, and that every
// Dump destination's filesystem has enough free space for its requested
// length, per gopsutil's disk.Usage. Any failure is a usage error (exit 1).
func runDoctor(args *arguments) int {
	fmt.Println("mtkflash doctor")
	fmt.Println("===============")

	ok := true

	if args.daPath != "" {
		f, err := os.Open(args.daPath)
		if err != nil {
			fmt.Printf("❌ opening download agent %q: %v\n", args.daPath, err)
			ok = false
		} else {
			_, err := mtk.Load(f)
			f.Close()
			if err != nil {
				fmt.Printf("❌ parsing download agent %q: %v\n", args.daPath, err)
				ok = false
			} else {
				fmt.Printf("✅ download agent %q parses\n", args.daPath)
			}
		}
	}

	for _, fo := range args.operations {
		switch fo.op.Kind {
		case mtk.OpFlash:
			info, err := fo.file.Stat()
			if err != nil {
				fmt.Printf("❌ stat flash source %q: %v\n", fo.path, err)
				ok = false
				continue
			}
			if uint64(info.Size()) < fo.op.Length {
				fmt.Printf("❌ flash source %q is %d bytes, shorter than requested length %d\n", fo.path, info.Size(), fo.op.Length)
				ok = false
				continue
			}
			fmt.Printf("✅ flash source %q has enough bytes\n", fo.path)

		case mtk.OpDump:
			usage, err := disk.Usage(filepath.Dir(fo.path))
			if err != nil {
				fmt.Printf("❌ checking free space for %q: %v\n", fo.path, err)
				ok = false
				continue
			}
			if usage.Free < fo.op.Length {
				fmt.Printf("❌ destination for %q has %d bytes free, need %d\n", fo.path, usage.Free, fo.op.Length)
				ok = false
				continue
			}
			fmt.Printf("✅ destination for %q has enough free space\n", fo.path)
		}
	}

	if !ok {
		return exitUsage
	}
	return exitOK
}
