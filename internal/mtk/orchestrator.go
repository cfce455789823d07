package mtk

import "fmt"

// phase is one step of the orchestrator's progression. Each phase advances
// the device from one DeviceState to the next.
type phase func(o *Orchestrator) error

// phases makes device-state progression an explicit, ordered list rather
// than a switch fall-through: advancing the DeviceState enum corresponds
// directly to running one more phase, and a caller can skip leading phases
// by declaring the device already in a later state.
var phases = []phase{
	(*Orchestrator).runSyncIfNone,
	(*Orchestrator).runPreloaderToStage2,
	(*Orchestrator).runStage2Ops,
}

// Orchestrator composes the Preloader, Stage-1, and Stage-2 clients over a
// single Transport and drives a list of operations to completion (spec.md
// §4.6).
type Orchestrator struct {
	t         *Transport
	container *Container
	ops       []Operation
	reboot    bool
	report    ProgressFunc

	identity HWIdentity
}

// Identity returns the device's HW/SW identity as reported during the
// Preloader phase. It is the zero value if that phase was skipped (the
// device was already declared Stage-2).
func (o *Orchestrator) Identity() HWIdentity { return o.identity }

// NewOrchestrator builds an Orchestrator. container may be nil only when
// initialState is StateStage2 (spec.md §6: DA path is required unless
// --da-stage2).
func NewOrchestrator(t *Transport, container *Container, ops []Operation, reboot bool, report ProgressFunc) *Orchestrator {
	return &Orchestrator{t: t, container: container, ops: ops, reboot: reboot, report: report}
}

// Run executes phases[initialState:], taking the device from initialState
// through to having completed every operation.
func (o *Orchestrator) Run(initialState DeviceState) error {
	if int(initialState) >= len(phases) {
		return fmt.Errorf("invalid initial device state %v", initialState)
	}
	for _, p := range phases[initialState:] {
		if err := p(o); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) runSyncIfNone() error {
	o.report.emit(ProgressEvent{Phase: "sync"})
	return Sync(o.t)
}

func (o *Orchestrator) runPreloaderToStage2() error {
	if o.container == nil {
		return &UsageError{Msg: "download agent is required unless the device is already in Stage-2"}
	}

	preloader := NewPreloader(o.t)

	o.report.emit(ProgressEvent{Phase: "identify"})
	identity, _, err := preloader.Identify()
	if err != nil {
		return fmt.Errorf("identifying device: %w", err)
	}
	o.identity = identity

	selection, err := o.container.Select(identity.HWCode, identity.HWVer, identity.SWVer)
	if err != nil {
		return err
	}

	if err := preloader.DisableWDT(); err != nil {
		return fmt.Errorf("disabling watchdog: %w", err)
	}

	if _, err := preloader.RunBROMQueryDance(); err != nil {
		return fmt.Errorf("BootROM query dance: %w", err)
	}

	stage1Payload, err := o.container.RegionBytes(selection.Stage1Region)
	if err != nil {
		return fmt.Errorf("reading Stage-1 payload: %w", err)
	}

	o.report.emit(ProgressEvent{Phase: "stage1-send"})
	if err := preloader.SendDA(selection.Stage1Region, stage1Payload, o.report); err != nil {
		return fmt.Errorf("sending DA Stage 1: %w", err)
	}

	if err := preloader.JumpDA(selection.Stage1Region.StartAddr); err != nil {
		return fmt.Errorf("jumping to DA Stage 1: %w", err)
	}

	stage1 := NewStage1(o.t)

	o.report.emit(ProgressEvent{Phase: "stage1-sync"})
	sync, err := stage1.Sync()
	if err != nil {
		return fmt.Errorf("syncing with DA Stage 1: %w", err)
	}
	if sync.NANDRet != mtkDANandNotFound {
		return protoErr("stage1-sync", "NAND controller did not return NAND_NOT_FOUND: 0x%x", sync.NANDRet)
	}
	if sync.EMMCRet != 0 {
		return protoErr("stage1-sync", "eMMC controller returned error: 0x%x", sync.EMMCRet)
	}

	stage2Payload, err := o.container.RegionBytes(selection.Stage2Region)
	if err != nil {
		return fmt.Errorf("reading Stage-2 payload: %w", err)
	}

	o.report.emit(ProgressEvent{Phase: "stage2-send"})
	if err := stage1.SendDA(selection.Stage2Region, stage2Payload, o.report); err != nil {
		return fmt.Errorf("sending DA Stage 2: %w", err)
	}

	if err := stage1.DrainPostStage2Reports(); err != nil {
		return fmt.Errorf("reading post-Stage-2 reports: %w", err)
	}

	passInfo, err := stage1.ReadPassInfo()
	if err != nil {
		return fmt.Errorf("reading pass info: %w", err)
	}
	if passInfo.Ack != mtkDAAck && passInfo.DownloadStatus != mtkDAAck {
		return protoErr("pass-info", "device did not acknowledge Stage-2 upload (ack=0x%02x)", passInfo.Ack)
	}

	return nil
}

func (o *Orchestrator) runStage2Ops() error {
	stage2 := NewStage2(o.t)

	o.report.emit(ProgressEvent{Phase: "usb-check-status"})
	if err := stage2.CheckUSBStatus(); err != nil {
		return err
	}

	for i := range o.ops {
		op := &o.ops[i]
		if err := op.Validate(); err != nil {
			return err
		}

		if err := stage2.SwitchPartition(mtkDAEMMCPartUser); err != nil {
			return fmt.Errorf("switching to EMMC user partition: %w", err)
		}

		o.report.emit(ProgressEvent{Phase: op.Kind.String(), OperationIndex: i, OperationCount: len(o.ops), Total: op.Length})

		switch op.Kind {
		case OpDump:
			if err := stage2.Read(mtkDAStorageSDMMC, op.Address, op.Length, op.Handler, o.report); err != nil {
				return fmt.Errorf("dump at 0x%x: %w", op.Address, err)
			}
		case OpFlash:
			if err := stage2.Write(mtkDAStorageSDMMC, mtkDAEMMCPartUser, op.Address, op.Length, op.Handler, o.report); err != nil {
				return fmt.Errorf("flash at 0x%x: %w", op.Address, err)
			}
		default:
			return fmt.Errorf("unknown operation kind %v", op.Kind)
		}
	}

	if o.reboot {
		o.report.emit(ProgressEvent{Phase: "reboot"})
		if err := stage2.EnableWatchdog(0, false, false, false, true); err != nil {
			return fmt.Errorf("enabling watchdog for reboot: %w", err)
		}
	}

	return nil
}
