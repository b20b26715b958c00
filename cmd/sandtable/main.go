// Command sandtable drives a polar sand table from the command line.
//
// It connects the GRBL motion controller and, optionally, the touch sensor
// board, then reads one command per line from stdin:
//
//	<r> <theta> [speed]   move to radius r (mm) and angle theta (degrees)
//	status                query and print the machine status
//	home                  run the homing sequence
//	hold | resume         pause or continue the motion
//
// Environment variables:
//
//	GRBL_PORT      - motion controller serial port (default: first port found)
//	GRBL_BAUD      - motion controller baud rate (default: 115200)
//	SENSOR_PORT    - sensor board serial port, disabled when empty
//	SENSOR_BAUD    - sensor board baud rate (default: 9600)
//	SYNC_SETTINGS  - "1" writes the default firmware settings on startup
//	GRBL_HOMING    - "0" disables the firmware homing cycle
//	LOG_LEVEL      - debug, info, warn or error (default: info)
//	ENV            - "development" selects the console log format
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sandscape/sandtable/grbl"
	"github.com/sandscape/sandtable/internal/pool"
	"github.com/sandscape/sandtable/logger"
	"github.com/sandscape/sandtable/sensor"
	"github.com/sandscape/sandtable/serialline"
)

const (
	defaultGrblBaud = 115200
	bufferWait      = 50 * time.Millisecond
	shutdownTimeout = 3 * time.Second
)

var log logger.Logger

func envInt(name string, def int) int {
	if val := os.Getenv(name); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
		log.Warn("invalid integer, using default", "name", name, "value", val, "default", def)
	}

	return def
}

func grblPort() (string, error) {
	if val := os.Getenv("GRBL_PORT"); val != "" {
		return val, nil
	}

	ports, err := serialline.ListPorts()
	if err != nil {
		return "", err
	}
	if len(ports) == 0 {
		return "", errors.New("no serial ports found, set GRBL_PORT")
	}

	return ports[0], nil
}

func newDriver(ctx context.Context) (*grbl.Driver, error) {
	portName, err := grblPort()
	if err != nil {
		return nil, err
	}

	lineCfg, err := serialline.NewConfig(portName, envInt("GRBL_BAUD", defaultGrblBaud),
		serialline.WithDisplayName("grbl"),
		serialline.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	transport, err := serialline.NewTransport(ctx, lineCfg)
	if err != nil {
		return nil, err
	}

	cfg, err := grbl.NewConfig(
		grbl.WithHomingEnabled(os.Getenv("GRBL_HOMING") != "0"),
		grbl.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	return grbl.NewDriver(transport, cfg)
}

func newSensor(ctx context.Context, drv *grbl.Driver) (*sensor.Monitor, error) {
	portName := os.Getenv("SENSOR_PORT")
	if portName == "" {
		return nil, nil
	}

	lineCfg, err := serialline.NewConfig(portName, envInt("SENSOR_BAUD", sensor.DefaultBaudRate),
		serialline.WithDisplayName("sensor"),
		serialline.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	transport, err := serialline.NewTransport(ctx, lineCfg)
	if err != nil {
		return nil, err
	}

	return sensor.NewMonitor(ctx, transport,
		sensor.WithLogger(log),
		sensor.WithHandler(func(r sensor.Reading) { drv.SetThetaZero(r.ThetaZero) }),
	)
}

func parseMove(fields []string, defSpeed float64) (grbl.Move, error) {
	if len(fields) < 2 || len(fields) > 3 {
		return grbl.Move{}, fmt.Errorf("want <r> <theta> [speed], got %d fields", len(fields))
	}

	vals := []float64{0, 0, defSpeed}
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return grbl.Move{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		vals[i] = v
	}

	return grbl.NewMove(vals[0], vals[1], vals[2]), nil
}

// waitBufferSpace polls the status until the planner buffer has room.
func waitBufferSpace(ctx context.Context, drv *grbl.Driver) error {
	for {
		if err := drv.Status(ctx); err != nil {
			return err
		}
		if drv.HasBufferSpace() {
			return nil
		}
		if err := pool.Sleep(ctx, bufferWait); err != nil {
			return err
		}
	}
}

// waitIdle polls the status until queued motion has finished.
func waitIdle(ctx context.Context, drv *grbl.Driver) error {
	for {
		if err := drv.Status(ctx); err != nil {
			return err
		}
		m := drv.Motion()
		if m.Status != grbl.StateRun && m.PlannerBuffer >= grbl.PlannerBufferMax {
			return nil
		}
		if err := pool.Sleep(ctx, bufferWait); err != nil {
			return err
		}
	}
}

func execute(ctx context.Context, drv *grbl.Driver, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	switch fields[0] {
	case "status":
		if err := drv.Status(ctx); err != nil {
			return err
		}
		m := drv.Motion()
		log.Info("status", "state", m.Status, "r", m.PosR, "theta", m.PosTheta,
			"planner", m.PlannerBuffer, "limits", m.Limits)

		return nil
	case "home":
		return drv.Home(ctx)
	case "hold":
		return drv.Hold(ctx)
	case "resume":
		return drv.Resume(ctx)
	}

	move, err := parseMove(fields, drv.Config().DefaultSpeed())
	if err != nil {
		return err
	}

	if err := waitBufferSpace(ctx, drv); err != nil {
		return err
	}

	drv.ProposeMove(move)
	if err := drv.SendNextMove(ctx); err != nil {
		return err
	}

	if err := drv.LastRejection(); err != nil {
		log.Warn("move rejected", "move", move.String(), "error", err)
	}

	return nil
}

func readCommands(ctx context.Context, drv *grbl.Driver) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		err := execute(ctx, drv, scanner.Text())
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled):
			return
		default:
			log.Error("command failed", "line", scanner.Text(), "error", err)
		}

		if !drv.ControlLoopEnabled() {
			log.Error("control loop halted by the device, stopping")
			return
		}
	}

	if err := scanner.Err(); err != nil {
		log.Error("failed to read commands", "error", err)
		return
	}

	// end of input: let the queued moves finish before the machine is stopped
	if err := waitIdle(ctx, drv); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("failed waiting for motion to finish", "error", err)
	}
}

func main() {
	logger.SetLevel(logger.ParseLevel(os.Getenv("LOG_LEVEL")))
	log = logger.GetLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	drv, err := newDriver(ctx)
	if err != nil {
		log.Error("failed to create driver", "error", err)
		return
	}

	monitor, err := newSensor(ctx, drv)
	if err != nil {
		log.Error("failed to create sensor monitor", "error", err)
		return
	}

	if monitor != nil {
		if err := monitor.Start(ctx); err != nil {
			log.Error("failed to start sensor monitor", "error", err)
			return
		}
		defer func() { _ = monitor.Stop() }()
	}

	exitSig := make(chan os.Signal, 1)
	signal.Notify(exitSig, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)

		if err := drv.Startup(ctx); err != nil {
			log.Error("startup failed", "error", err)
			return
		}

		if os.Getenv("SYNC_SETTINGS") == "1" {
			n, err := drv.SyncSettings(ctx, grbl.DefaultSettings())
			if err != nil {
				log.Error("settings sync failed", "error", err)
				return
			}
			log.Info("settings synced", "written", n)
		}

		if err := drv.Home(ctx); err != nil {
			log.Error("homing failed", "error", err)
			return
		}

		readCommands(ctx, drv)
	}()

	select {
	case sig := <-exitSig:
		log.Info("signal received, stopping", "signal", sig)
	case <-done:
	}

	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()

	if err := drv.Stop(stopCtx); err != nil {
		log.Error("failed to stop machine", "error", err)
	}

	if err := drv.Close(); err != nil {
		log.Error("failed to close driver", "error", err)
	}

	log.Info("exit")
}
