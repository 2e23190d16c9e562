package ncr

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"ncrflow/internal/bootstrap/logging"
	"ncrflow/internal/errs"
)

// WatchPolicy reloads policyFile into holder whenever it changes, until ctx
// is done. The parent directory is watched so editors that replace the file
// by rename are picked up. Reload failures are logged and the previous
// policy stays active.
func WatchPolicy(ctx context.Context, policyFile string, holder *PolicyHolder) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if holder == nil {
		return errors.New("policy holder is required")
	}
	path := strings.TrimSpace(policyFile)
	if path == "" {
		return errors.New("policy file is required")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return errs.Wrap(err, "resolve policy file path")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errs.Wrap(err, "create policy watcher")
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return errs.Wrapf(err, "watch %s", filepath.Dir(absPath))
	}

	ctx = logging.WithAttrs(ctx,
		slog.String("component", "usecase.ncr.policy"),
		slog.String("policy_file", absPath),
	)
	logging.Info(ctx, "policy watcher started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			reloadPolicy(ctx, absPath, holder)
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Warn(ctx, "policy watcher error", slog.Any("err", errs.Loggable(watchErr)))
		}
	}
}

func reloadPolicy(ctx context.Context, path string, holder *PolicyHolder) {
	policy, err := LoadPolicy(path)
	if err != nil {
		logging.Warn(ctx, "policy reload rejected", slog.Any("err", errs.Loggable(err)))
		return
	}
	if err := holder.Store(policy); err != nil {
		logging.Warn(ctx, "policy reload rejected", slog.Any("err", errs.Loggable(err)))
		return
	}
	logging.Info(ctx, "policy reloaded",
		slog.Int("max_level", policy.Escalation.MaxLevel),
		slog.Bool("allow_direct_close", policy.Close.AllowDirectClose),
	)
}
