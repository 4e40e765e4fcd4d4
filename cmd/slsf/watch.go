package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// newWatchCmd creates the "watch" subcommand for auto-recompiling on
// configuration changes.
func newWatchCmd() *cobra.Command {
	var (
		configFile   string
		debounce     time.Duration
		outputFormat string
		outputFile   string
		stage        string
		region       string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Auto-recompile on configuration changes",
		Long: `Watch monitors the service configuration file and recompiles on change.

The watch command:
- Monitors the configuration file's directory
- Recompiles on each write to the file
- Debounces rapid changes to avoid excessive rebuilds

Examples:
    slsf watch -c serverless.yml
    slsf watch -c serverless.yml -o template.json
    slsf watch -c serverless.yml --debounce 1s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(watchOptions{
				configFile:   configFile,
				debounce:     debounce,
				outputFormat: outputFormat,
				outputFile:   outputFile,
				stage:        stage,
				region:       region,
			})
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "serverless.yml", "Service configuration file")
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "Debounce duration for rapid changes")
	cmd.Flags().StringVarP(&outputFormat, "format", "f", "json", "Output format for build: json or yaml")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file for build (default: stdout)")
	cmd.Flags().StringVar(&stage, "stage", "", "Override the provider stage")
	cmd.Flags().StringVar(&region, "region", "", "Override the provider region")

	return cmd
}

type watchOptions struct {
	configFile   string
	debounce     time.Duration
	outputFormat string
	outputFile   string
	stage        string
	region       string
}

// runWatch monitors the configuration file and recompiles on changes.
func runWatch(opts watchOptions) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	// Watch the directory; editors replace files on save, which drops the
	// watch when it is attached to the file itself.
	absPath, err := filepath.Abs(opts.configFile)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(absPath), err)
	}
	fmt.Printf("Watching: %s\n", absPath)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	fmt.Println("Running initial build...")
	rebuild(opts)

	var debounceTimer *time.Timer
	rebuildChan := make(chan struct{}, 1)

	fmt.Println("\nWatching for changes... (Ctrl+C to stop)")

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			changed, err := filepath.Abs(event.Name)
			if err != nil || changed != absPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(opts.debounce, func() {
				select {
				case rebuildChan <- struct{}{}:
				default:
				}
			})

		case <-rebuildChan:
			fmt.Printf("\n[%s] Change detected, rebuilding...\n", time.Now().Format("15:04:05"))
			rebuild(opts)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "Watch error: %v\n", err)

		case <-sigChan:
			fmt.Println("\nStopping watch...")
			return nil
		}
	}
}

// rebuild runs one compilation, reporting errors without stopping the watch.
func rebuild(opts watchOptions) {
	err := runBuild(opts.configFile, opts.outputFormat, opts.outputFile, opts.stage, opts.region)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Build error: %v\n", err)
		return
	}
	fmt.Println("Build successful")
}
