// animcancel - hold a trigger to repeat click + cancel keys
// A cross-platform input automation helper built on global input capture
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"animcancel/internal/action"
	"animcancel/internal/api"
	"animcancel/internal/automation"
	"animcancel/internal/autostart"
	"animcancel/internal/config"
	"animcancel/internal/input"
	"animcancel/internal/osutils"
	"animcancel/internal/singleinstance"
	"animcancel/internal/tray"
)

var (
	version     = "0.3.0"
	triggerFlag = flag.String("trigger", "", "Trigger binding, e.g. \"Middle Click\", \"ctrl+Right Click\", \"shift+f5\"")
	intervalMs  = flag.Int("interval", 0, "Delay between click and cancel keys in milliseconds (1-500)")
	cancelKeys  = flag.String("cancel-keys", "", "Two comma separated cancel keys (default \"x,z\")")
	killSwitch  = flag.String("kill-switch", "", "Key binding that stops automation; \"none\" disables it")
	showTray    = flag.Bool("tray", true, "Show the system tray menu")
	apiEnabled  = flag.Bool("api", false, "Enable the local control API")
	apiAddr     = flag.String("api-addr", "", "Control API listen address")
	apiToken    = flag.String("api-token", "", "Bearer token required by the control API")
	printConfig = flag.Bool("print-config", false, "Print the effective configuration and exit")
	checkPerm   = flag.Bool("check", false, "Check input capture permission and exit")
	remoteCmd   = flag.String("remote", "", "Control a running instance: status|start|stop|watch")
	autostartOp = flag.String("autostart", "", "Run on login: enable|disable|status")
	showVer     = flag.Bool("version", false, "Show version")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("animcancel version %s\n", version)
		return
	}

	settings, err := loadSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(2)
	}

	switch {
	case *printConfig:
		out, err := settings.YAML()
		if err != nil {
			log.Fatalf("Failed to render config: %v", err)
		}
		os.Stdout.Write(out)
	case *checkPerm:
		runCheck()
	case *remoteCmd != "":
		runRemote(settings, *remoteCmd)
	case *autostartOp != "":
		runAutostart(*autostartOp)
	default:
		runService(settings)
	}
}

// loadSettings layers defaults, environment and explicitly set flags.
func loadSettings() (config.Settings, error) {
	s := config.Default()
	if err := config.ApplyEnv(&s, os.LookupEnv); err != nil {
		return s, err
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "trigger":
			s.Trigger = *triggerFlag
		case "interval":
			s.IntervalMs = *intervalMs
		case "cancel-keys":
			s.CancelKeys = config.SplitKeys(*cancelKeys)
		case "kill-switch":
			if strings.EqualFold(*killSwitch, "none") {
				s.KillSwitch = ""
			} else {
				s.KillSwitch = *killSwitch
			}
		case "tray":
			s.Tray = *showTray
		case "api":
			s.API.Enabled = *apiEnabled
		case "api-addr":
			s.API.Addr = *apiAddr
		case "api-token":
			s.API.Token = *apiToken
		}
	})

	return s, s.Validate()
}

func runCheck() {
	if osutils.CapturePermitted() {
		fmt.Println("Input capture: permitted")
		return
	}
	fmt.Println("Input capture: NOT permitted")
	fmt.Printf("Hint: %s\n", osutils.PermissionHint())
	os.Exit(1)
}

func runRemote(s config.Settings, cmd string) {
	client := api.NewClient(s.API.Addr, s.API.Token)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	switch cmd {
	case "status":
		var st automation.Status
		st, err = client.Status(ctx)
		if err == nil {
			printStatus(st)
		}
	case "start":
		err = client.Start(ctx)
	case "stop":
		err = client.Stop(ctx)
	case "watch":
		err = client.Watch(ctx, printStatus)
	default:
		err = fmt.Errorf("unknown remote command %q (want status|start|stop|watch)", cmd)
	}
	if err != nil {
		log.Fatalf("Remote %s failed: %v", cmd, err)
	}
}

func printStatus(st automation.Status) {
	fmt.Printf("running=%v held=%v worker=%v trigger=%q interval=%dms spawns=%d iterations=%d clicks=%d failures=%d\n",
		st.Running, st.Held, st.WorkerActive, st.Trigger, st.IntervalMs,
		st.WorkerSpawns, st.Iterations, st.Synthesis.Clicks, st.Synthesis.Failures)
}

func runAutostart(op string) {
	switch op {
	case "enable":
		if err := autostart.Enable(); err != nil {
			log.Fatalf("Failed to enable autostart: %v", err)
		}
		fmt.Println("Autostart enabled")
	case "disable":
		if err := autostart.Disable(); err != nil {
			log.Fatalf("Failed to disable autostart: %v", err)
		}
		fmt.Println("Autostart disabled")
	case "status":
		fmt.Printf("Autostart enabled: %v\n", autostart.IsEnabled())
	default:
		log.Fatalf("Unknown autostart operation %q (want enable|disable|status)", op)
	}
}

func runService(settings config.Settings) {
	log.Println("animcancel starting...")

	lock, err := singleinstance.TryLock("animcancel")
	if errors.Is(err, singleinstance.ErrAlreadyRunning) {
		log.Fatalf("animcancel is already running; use -remote to control it")
	}
	if err != nil {
		log.Printf("Warning: single instance lock unavailable: %v", err)
	}
	defer lock.Release()

	if runtime.GOOS == "windows" && !osutils.IsAdmin() {
		log.Println("Note: input sent to elevated windows is not visible without administrator privileges")
	}

	cfgMgr := config.NewManager(settings)

	ac := automation.NewContext()
	synth := action.NewSynthesizer(input.NewRobotInjector(), action.DefaultTiming())

	var (
		apiServer  *api.Server
		t          *tray.Tray
		stateLabel *tray.Item
		enabled    *tray.Item
	)

	ctl := automation.NewController(ac, automation.Options{
		Source:    input.NewHookSource(),
		Performer: synth,
		Permitted: osutils.CapturePermitted,
		Modifiers: input.SystemModifiers,
		OnChange: func(st automation.Status) {
			if apiServer != nil {
				apiServer.BroadcastState(st)
			}
			if t != nil {
				t.SetTitle(stateLabel, describeState(st))
				t.SetChecked(enabled, st.Running)
			}
		},
	})
	applySettings(ac, synth, ctl, settings)

	cfgMgr.RegisterChangeCallback(func(s config.Settings) {
		applySettings(ac, synth, ctl, s)
	})

	if settings.API.Enabled {
		apiServer = api.NewServer(cfgMgr, ctl)
		go func() {
			if err := apiServer.Start(settings.API.Addr); err != nil {
				log.Printf("API server error: %v", err)
			}
		}()
	}

	if settings.Tray {
		t = tray.New("animcancel", "animcancel - hold "+settings.Trigger)
		stateLabel = t.AddLabel("Stopped")
		t.AddSeparator()
		enabled = t.AddCheckbox("Enabled", false, func() {
			toggleAutomation(ctl)
		})
		var loginItem *tray.Item
		loginItem = t.AddCheckbox("Start at login", autostart.IsEnabled(), func() {
			if err := toggleAutostart(); err != nil {
				log.Printf("Autostart error: %v", err)
			}
			t.SetChecked(loginItem, autostart.IsEnabled())
		})
		t.AddSeparator()
		t.AddItem("Quit", func() {
			t.Stop()
		})
	}

	if err := ctl.Start(); err != nil {
		log.Printf("Automation: not started: %v", err)
		if errors.Is(err, automation.ErrPermissionDenied) {
			log.Printf("Hint: %s", osutils.PermissionHint())
		}
	}

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ctl.Stop(ctx); err != nil {
			log.Printf("Automation: stop timed out: %v", err)
		}
		if apiServer != nil {
			apiServer.Shutdown(ctx)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if t == nil {
		log.Printf("animcancel running (hold %s). Press Ctrl+C to stop.", settings.Trigger)
		<-sigCh
		log.Println("Shutting down...")
		shutdown()
		return
	}

	go func() {
		<-sigCh
		log.Println("Shutting down...")
		t.Stop()
	}()
	t.OnExit(shutdown)

	log.Printf("animcancel running (hold %s). Use the tray menu or Ctrl+C to stop.", settings.Trigger)
	t.Run()
}

// applySettings pushes settings into the running automation.
func applySettings(ac *automation.Context, synth *action.Synthesizer, ctl *automation.Controller, s config.Settings) {
	if b, err := s.TriggerBinding(); err == nil {
		ac.SetTrigger(b)
	}
	if got := ac.ConfigureRepeatIntervalMilliseconds(s.IntervalMs); got != s.IntervalMs {
		log.Printf("Config: interval %dms clamped to %dms", s.IntervalMs, got)
	}
	if len(s.CancelKeys) == 2 {
		synth.SetCancelKeys(s.CancelKeys[0], s.CancelKeys[1])
	}
	ac.SetEchoKeys(s.CancelKeyCodes()...)

	ks, err := s.KillSwitchBinding()
	if err != nil {
		log.Printf("Config: ignoring kill switch %q: %v", s.KillSwitch, err)
		ks = nil
	}
	ctl.SetKillSwitch(ks)
}

func toggleAutomation(ctl *automation.Controller) {
	if ctl.Running() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ctl.Stop(ctx); err != nil {
			log.Printf("Automation: stop failed: %v", err)
		}
		return
	}
	if err := ctl.Start(); err != nil {
		log.Printf("Automation: start failed: %v", err)
		if errors.Is(err, automation.ErrPermissionDenied) {
			log.Printf("Hint: %s", osutils.PermissionHint())
		}
	}
}

func toggleAutostart() error {
	if autostart.IsEnabled() {
		return autostart.Disable()
	}
	return autostart.Enable()
}

func describeState(st automation.Status) string {
	switch {
	case !st.Running:
		return "Stopped"
	case st.WorkerActive:
		return fmt.Sprintf("Repeating (%s, %dms)", st.Trigger, st.IntervalMs)
	default:
		return "Waiting for " + st.Trigger
	}
}
