package opc

import (
	"errors"
	"testing"
)

func TestDeviceOption(t *testing.T) {
	device := &testDevice{channel: 3}
	opt := DeviceOption(device)

	var opts options
	opt(&opts)

	if opts.device != device {
		t.Error("device not set correctly")
	}
}

func TestBufferSizeOption(t *testing.T) {
	opt := BufferSizeOption(100)

	var opts options
	opt(&opts)

	if opts.bufferSize != 100 {
		t.Errorf("bufferSize = %d, want 100", opts.bufferSize)
	}
}

func TestOnErrorOption(t *testing.T) {
	opt := OnErrorOption(func(err error) ErrorAction { return Continue })

	var opts options
	opt(&opts)

	if opts.onError == nil {
		t.Fatal("onError not set")
	}
	if opts.onError(errors.New("test")) != Continue {
		t.Error("onError callback not preserved")
	}
}

func TestLoggerOption(t *testing.T) {
	logger := &mockLogger{}
	opt := LoggerOption(logger)

	var opts options
	opt(&opts)

	if opts.logger != logger {
		t.Error("logger not set correctly")
	}
}

func TestCheckOptions_DefaultValues(t *testing.T) {
	opts := &options{
		device: &testDevice{},
	}

	if err := checkOptions(opts); err != nil {
		t.Fatalf("checkOptions failed: %v", err)
	}

	if opts.bufferSize != defaultBufferSize {
		t.Errorf("bufferSize = %d, want %d", opts.bufferSize, defaultBufferSize)
	}
	if opts.onError == nil {
		t.Error("onError should have default value")
	}
	if opts.logger == nil {
		t.Error("logger should have default value")
	}
}

func TestCheckOptions_MissingDevice(t *testing.T) {
	opts := &options{}

	if err := checkOptions(opts); err != ErrInvalidDevice {
		t.Errorf("checkOptions() = %v, want ErrInvalidDevice", err)
	}
}

func TestCheckOptions_DefaultOnError(t *testing.T) {
	opts := &options{
		device: &testDevice{},
	}

	if err := checkOptions(opts); err != nil {
		t.Fatalf("checkOptions failed: %v", err)
	}

	// The default verdict tears the connection down.
	if opts.onError(errors.New("test")) != Disconnect {
		t.Error("default onError should return Disconnect")
	}
}
