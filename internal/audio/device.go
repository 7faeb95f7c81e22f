package audio

import (
	"runtime"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/sigscope/sigscope/internal/errors"
	"github.com/sigscope/sigscope/internal/logger"
)

// queueSeconds is how much audio the device queue holds.
const queueSeconds = 1

// Device is a malgo playback device fed from a ring buffer.
type Device struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	queue  *queue
	rate   uint32
	log    logger.Logger

	closeOnce sync.Once
}

// DeviceOpener opens malgo playback devices, or a null playback for NullDevice.
type DeviceOpener struct {
	Logger logger.Logger
}

// Open implements Opener.
func (o DeviceOpener) Open(device string, rate uint32) (Playback, error) {
	if device == NullDevice {
		return NewNullPlayback(rate)
	}
	return OpenDevice(device, rate, o.Logger)
}

func backendForPlatform() malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa
	case "windows":
		return malgo.BackendWasapi
	case "darwin":
		return malgo.BackendCoreaudio
	default:
		return malgo.BackendNull
	}
}

// OpenDevice opens the named playback device ("" or "default" for the
// system default) and starts it. The device may negotiate a different rate.
func OpenDevice(name string, rate uint32, log logger.Logger) (*Device, error) {
	if rate == 0 {
		return nil, errors.New(ErrInvalidRate).
			Component("audio").
			Category(errors.CategoryPlayback).
			Build()
	}
	if log == nil {
		log = logger.Global().Module("audio")
	}

	mctx, err := malgo.InitContext([]malgo.Backend{backendForPlatform()}, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component("audio").
			Category(errors.CategoryPlayback).
			Context("operation", "init_context").
			Context("backend", runtime.GOOS).
			Build()
	}

	d := &Device{ctx: mctx, queue: newQueue(int(rate) * queueSeconds), log: log}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = 1
	cfg.SampleRate = rate
	cfg.Alsa.NoMMap = 1

	if name != "" && name != "default" {
		info, err := findPlaybackDevice(mctx, name)
		if err != nil {
			_ = mctx.Uninit()
			mctx.Free()
			return nil, err
		}
		cfg.Playback.DeviceID = info.ID.Pointer()
	}

	dev, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{
		Data: d.onData,
	})
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, errors.New(err).
			Component("audio").
			Category(errors.CategoryPlayback).
			Context("operation", "init_device").
			Context("device_name", name).
			Build()
	}
	d.device = dev
	d.rate = dev.SampleRate()

	if err := dev.Start(); err != nil {
		dev.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return nil, errors.New(err).
			Component("audio").
			Category(errors.CategoryPlayback).
			Context("operation", "start_device").
			Build()
	}

	log.Info("playback device started",
		logger.String("device", name),
		logger.Int("requested_rate", int(rate)),
		logger.Int("negotiated_rate", int(d.rate)))
	return d, nil
}

func findPlaybackDevice(mctx *malgo.AllocatedContext, name string) (*malgo.DeviceInfo, error) {
	infos, err := mctx.Devices(malgo.Playback)
	if err != nil {
		return nil, errors.New(err).
			Component("audio").
			Category(errors.CategoryPlayback).
			Context("operation", "enumerate_devices").
			Build()
	}
	for i := range infos {
		if infos[i].Name() == name || infos[i].ID.String() == name {
			return &infos[i], nil
		}
	}
	return nil, errors.Newf("playback device %q not found", name).
		Component("audio").
		Category(errors.CategoryNotFound).
		Context("device_name", name).
		Build()
}

// onData runs on the malgo audio thread.
func (d *Device) onData(out, _ []byte, _ uint32) {
	d.queue.pull(out)
}

// SampleRate implements Playback.
func (d *Device) SampleRate() uint32 { return d.rate }

// Write implements Playback.
func (d *Device) Write(samples []complex64) { d.queue.push(samples) }

// Close stops the device and releases the malgo context.
func (d *Device) Close() error {
	var err error
	d.closeOnce.Do(func() {
		if d.device != nil {
			err = d.device.Stop()
			d.device.Uninit()
		}
		if uerr := d.ctx.Uninit(); uerr != nil && err == nil {
			err = uerr
		}
		d.ctx.Free()
		d.log.Debug("playback device closed",
			logger.Uint64("dropped_frames", d.queue.dropped.Load()),
			logger.Uint64("underruns", d.queue.under.Load()))
	})
	return err
}
