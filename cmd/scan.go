package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	devicescan "github.com/httprunner/DeviceScan"
	"github.com/httprunner/DeviceScan/internal/config"
	"github.com/httprunner/DeviceScan/internal/env"
	"github.com/httprunner/DeviceScan/internal/feishu"
	"github.com/httprunner/DeviceScan/internal/storage"
	"github.com/httprunner/DeviceScan/pkg/devrecorder"
	"github.com/httprunner/DeviceScan/pkg/scanner"
)

func newScanCmd() *cobra.Command {
	var (
		flagConfig    string
		flagAdapters  []string
		flagRecordDB  string
		flagSQLite    bool
		flagFeishuURL string
		flagDuration  time.Duration
		flagPrint     bool
		flagOffline   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run the scanner until interrupted",
		Long:  "Starts every configured adapter, logs device events and records device state until SIGINT/SIGTERM or --duration elapses.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := config.Load(flagConfig)
			if err != nil {
				return err
			}
			for _, id := range flagAdapters {
				if id = strings.TrimSpace(id); id != "" {
					cfg.Enable(id, nil)
				}
			}
			if len(cfg.Adapters) == 0 {
				for _, id := range devicescan.DefaultRegistry().IDs() {
					cfg.Enable(id, nil)
				}
			}
			if flagRecordDB != "" {
				cfg.Record.DBPath = flagRecordDB
				cfg.Record.SQLite = true
			}
			if flagSQLite {
				cfg.Record.SQLite = true
			}
			if flagFeishuURL != "" {
				cfg.Record.FeishuURL = flagFeishuURL
			}

			recorder, closeRecorder, err := buildRecorder(cfg.Record)
			if err != nil {
				return err
			}
			defer closeRecorder()

			s, err := devicescan.NewScanner(cfg.ScannerConfig())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			duration := flagDuration
			if duration <= 0 {
				duration = env.Duration(env.ScanDuration, 0)
			}
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			var out io.Writer
			if flagPrint {
				out = cmd.OutOrStdout()
			}
			log.Info().
				Str("config", path).
				Strs("adapters", s.Subscriptions()).
				Dur("duration", duration).
				Msg("device scan running")
			tracker := devrecorder.NewTracker(recorder).SetOfflineAfter(flagOffline)
			return runScan(ctx, s, tracker, out)
		},
	}

	cmd.Flags().StringVar(&flagConfig, "config", "", "scan config file (defaults to $DEVICESCAN_CONFIG or ./devicescan.yaml)")
	cmd.Flags().StringSliceVar(&flagAdapters, "adapter", nil, "adapter id to enable with default options (repeatable)")
	cmd.Flags().StringVar(&flagRecordDB, "record-db", "", "record device state to this SQLite file")
	cmd.Flags().BoolVar(&flagSQLite, "sqlite", false, "record device state to the default SQLite file")
	cmd.Flags().StringVar(&flagFeishuURL, "feishu-url", "", "record device state to this Feishu bitable (overrides $DEVICE_BITABLE_URL)")
	cmd.Flags().DurationVar(&flagDuration, "duration", 0, "stop after this long (0 runs until interrupted)")
	cmd.Flags().BoolVar(&flagPrint, "print", false, "print every results payload to stdout as JSON lines")
	cmd.Flags().DurationVar(&flagOffline, "offline-after", 0, "report a missing device offline only after this long")
	return cmd
}

// runScan starts s, feeds its events to a tracker until ctx is done, then
// stops s and waits for the tracker to drain.
func runScan(ctx context.Context, s *scanner.Scanner, tracker *devrecorder.Tracker, out io.Writer) error {
	trackerEvents := s.Watch(ctx, 256)
	logID := s.On(func(ev scanner.Event) { logEvent(ev, out) })
	defer s.Off(logID)

	group, groupCtx := errgroup.WithContext(context.Background())
	groupGoSafe(groupCtx, group, "device tracker", func(ctx context.Context) error {
		return tracker.Run(ctx, trackerEvents)
	})

	s.Start()
	<-ctx.Done()
	s.Stop()
	return group.Wait()
}

func logEvent(ev scanner.Event, out io.Writer) {
	switch ev := ev.(type) {
	case scanner.Start:
		log.Info().Msg("scan started")
	case scanner.Stop:
		log.Info().Msg("scan stopped")
	case scanner.Subscribe:
		log.Debug().Str("adapter", ev.ID).Msg("adapter subscribed")
	case scanner.Unsubscribe:
		log.Debug().Str("adapter", ev.ID).Msg("adapter unsubscribed")
	case scanner.Error:
		log.Warn().Err(ev.Err).Msg("scan error")
	case scanner.Results:
		if out == nil {
			return
		}
		line, err := json.Marshal(ev.Payload)
		if err != nil {
			log.Warn().Err(err).Msg("encode results payload failed")
			return
		}
		_, _ = out.Write(append(line, '\n'))
	}
}

func buildRecorder(rc config.RecordConfig) (devrecorder.Recorder, func(), error) {
	var (
		recorders devrecorder.Multi
		closers   []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	if rc.SQLite {
		db, err := storage.Open(rc.DBPath)
		if err != nil {
			return nil, nil, errors.Wrap(err, "open device database")
		}
		log.Info().Str("path", db.Path()).Msg("recording devices to sqlite")
		recorders = append(recorders, db)
		closers = append(closers, func() { _ = db.Close() })
	}
	if url := strings.TrimSpace(rc.FeishuURL); url != "" {
		rec, err := feishu.NewDeviceRecorderFromEnv(url)
		if err != nil {
			closeAll()
			return nil, nil, errors.Wrap(err, "init feishu device recorder")
		}
		log.Info().Str("url", url).Msg("recording devices to feishu bitable")
		recorders = append(recorders, rec)
	}
	if len(recorders) == 0 {
		return devrecorder.Noop{}, closeAll, nil
	}
	return recorders, closeAll, nil
}
