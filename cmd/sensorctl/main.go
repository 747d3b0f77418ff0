// Command sensorctl is an interactive console for driving a sensor
// manager by hand: register a handful of demo sensors, then issue
// request/amend/release/trigger commands and watch the state machine
// settle, without needing real hardware or a remote daemon.
package main

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"sensorhub/internal/dispatch"
	"sensorhub/internal/domain"
	"sensorhub/internal/eventrt"
	"sensorhub/internal/manager"

	"github.com/google/shlex"
	"go.uber.org/zap"
)

func main() {
	log := zap.NewNop()
	rt := eventrt.NewGoroutine(64)
	defer rt.Close()

	mgr := manager.New(manager.Config{SensorCapacity: 16, RequestCapacity: 64, InternalEventCapacity: 32}, nil, rt, nil, log)
	sensors := registerDemoSensors(mgr)

	fmt.Println("sensorctl: type 'help' for commands, 'quit' to exit")
	repl(mgr, sensors)
}

// demoSensor is a software-only stand-in for a driver: every operation
// reports completion on its own goroutine after a short, deterministic
// delay, so the console has something real to observe settling through
// POWERING_ON/FW_UPLOADING without needing actual hardware.
type demoSensor struct {
	name     string
	handle   domain.Handle
	mgr      *manager.Manager
	baseRate domain.Rate
}

func (d *demoSensor) Power(on bool) bool {
	go func() {
		time.Sleep(120 * time.Millisecond)
		d.mgr.SignalInternalEvt(d.handle, manager.EventPowerStateChanged, boolToInt64(on), 0)
	}()
	return true
}

func (d *demoSensor) FirmwareUpload() bool {
	go func() {
		time.Sleep(80 * time.Millisecond)
		d.mgr.SignalInternalEvt(d.handle, manager.EventFirmwareStateChanged, int64(d.baseRate), int64(domain.LatencyInvalid))
	}()
	return true
}

func (d *demoSensor) SetRate(rate domain.Rate, latency domain.Latency) bool {
	go func() {
		time.Sleep(40 * time.Millisecond)
		d.mgr.SignalInternalEvt(d.handle, manager.EventRateChanged, int64(rate), int64(latency))
	}()
	return true
}

func (d *demoSensor) Flush() bool           { return true }
func (d *demoSensor) TriggerOndemand() bool { return true }

func boolToInt64(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func registerDemoSensors(mgr *manager.Manager) map[string]domain.Handle {
	specs := []struct {
		name  string
		typ   domain.SensorType
		rates []domain.Rate
	}{
		{"temp0", 1, []domain.Rate{1, 5, 10}},
		{"accel0", 2, []domain.Rate{10, 50, 100}},
		{"door0", 3, []domain.Rate{domain.RateOnDemand, domain.RateOnChange}},
	}

	out := make(map[string]domain.Handle, len(specs))
	for _, s := range specs {
		d := &demoSensor{name: s.name, mgr: mgr, baseRate: s.rates[0]}
		info := domain.Info{Type: s.typ, Name: s.name, SupportedRates: s.rates}
		h := mgr.Register(info, dispatch.InProc(d))
		d.handle = h
		out[s.name] = h
	}
	return out
}

func repl(mgr *manager.Manager, sensors map[string]domain.Handle) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		args, err := shlex.Split(scanner.Text())
		if err != nil || len(args) == 0 {
			if err != nil {
				fmt.Println("parse error:", err)
			}
			continue
		}

		switch args[0] {
		case "help":
			printHelp()
		case "quit", "exit":
			return
		case "list":
			listSensors(mgr, sensors)
		case "request":
			runRequest(mgr, sensors, args[1:])
		case "amend":
			runAmend(mgr, sensors, args[1:])
		case "release":
			runRelease(mgr, sensors, args[1:])
		case "trigger":
			runTrigger(mgr, sensors, args[1:])
		case "flush":
			runFlush(mgr, sensors, args[1:])
		default:
			fmt.Printf("unknown command %q; type 'help'\n", args[0])
		}
	}
}

func printHelp() {
	fmt.Println(`commands:
  list
  request <client-id> <sensor> <rate|ondemand|onchange> [latency]
  amend   <client-id> <sensor> <rate|ondemand|onchange> [latency]
  release <client-id> <sensor>
  trigger <client-id> <sensor>
  flush   <sensor>
  quit`)
}

func listSensors(mgr *manager.Manager, sensors map[string]domain.Handle) {
	names := make([]string, 0, len(sensors))
	for name := range sensors {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		h := sensors[name]
		fmt.Printf("%-10s handle=%d rate=%s latency=%s\n", name, h, formatRate(mgr.GetCurRate(h)), formatLatency(mgr.GetCurLatency(h)))
	}
}

func runRequest(mgr *manager.Manager, sensors map[string]domain.Handle, args []string) {
	clientID, handle, rate, latency, err := parseRequestArgs(sensors, args)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if !mgr.Request(clientID, handle, rate, latency) {
		fmt.Println("request refused")
		return
	}
	fmt.Println("ok")
}

func runAmend(mgr *manager.Manager, sensors map[string]domain.Handle, args []string) {
	clientID, handle, rate, latency, err := parseRequestArgs(sensors, args)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if !mgr.Amend(clientID, handle, rate, latency) {
		fmt.Println("amend refused")
		return
	}
	fmt.Println("ok")
}

func runRelease(mgr *manager.Manager, sensors map[string]domain.Handle, args []string) {
	clientID, handle, err := parseClientAndSensor(sensors, args)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if !mgr.Release(clientID, handle) {
		fmt.Println("release refused")
		return
	}
	fmt.Println("ok")
}

func runTrigger(mgr *manager.Manager, sensors map[string]domain.Handle, args []string) {
	clientID, handle, err := parseClientAndSensor(sensors, args)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if !mgr.TriggerOndemand(clientID, handle) {
		fmt.Println("trigger refused")
		return
	}
	fmt.Println("ok")
}

func runFlush(mgr *manager.Manager, sensors map[string]domain.Handle, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: flush <sensor>")
		return
	}
	handle, ok := sensors[args[0]]
	if !ok {
		fmt.Printf("unknown sensor %q\n", args[0])
		return
	}
	if !mgr.Flush(handle) {
		fmt.Println("flush refused")
		return
	}
	fmt.Println("ok")
}

func parseClientAndSensor(sensors map[string]domain.Handle, args []string) (uint32, domain.Handle, error) {
	if len(args) != 2 {
		return 0, 0, fmt.Errorf("usage: <client-id> <sensor>")
	}
	clientID, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("bad client id %q: %w", args[0], err)
	}
	handle, ok := sensors[args[1]]
	if !ok {
		return 0, 0, fmt.Errorf("unknown sensor %q", args[1])
	}
	return uint32(clientID), handle, nil
}

func parseRequestArgs(sensors map[string]domain.Handle, args []string) (uint32, domain.Handle, domain.Rate, domain.Latency, error) {
	if len(args) != 3 && len(args) != 4 {
		return 0, 0, 0, 0, fmt.Errorf("usage: <client-id> <sensor> <rate|ondemand|onchange> [latency]")
	}
	clientID, handle, err := parseClientAndSensor(sensors, args[:2])
	if err != nil {
		return 0, 0, 0, 0, err
	}
	rate, err := parseRate(args[2])
	if err != nil {
		return 0, 0, 0, 0, err
	}
	latency := domain.LatencyInvalid
	if len(args) == 4 {
		v, err := strconv.ParseInt(args[3], 10, 64)
		if err != nil {
			return 0, 0, 0, 0, fmt.Errorf("bad latency %q: %w", args[3], err)
		}
		latency = domain.Latency(v)
	}
	return clientID, handle, rate, latency, nil
}

func parseRate(s string) (domain.Rate, error) {
	switch s {
	case "ondemand":
		return domain.RateOnDemand, nil
	case "onchange":
		return domain.RateOnChange, nil
	default:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("bad rate %q: %w", s, err)
		}
		return domain.Rate(v), nil
	}
}

func formatRate(r domain.Rate) string {
	switch r {
	case domain.RateOff:
		return "off"
	case domain.RateOnDemand:
		return "ondemand"
	case domain.RateOnChange:
		return "onchange"
	case domain.RatePoweringOn:
		return "powering-on"
	case domain.RatePoweringOff:
		return "powering-off"
	case domain.RateFWUploading:
		return "fw-uploading"
	default:
		return strconv.FormatInt(int64(r), 10)
	}
}

func formatLatency(l domain.Latency) string {
	if l == domain.LatencyInvalid {
		return "n/a"
	}
	return strconv.FormatInt(int64(l), 10)
}
