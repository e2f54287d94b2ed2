package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/asheshgoplani/agent-pulse/internal/config"
	"github.com/asheshgoplani/agent-pulse/internal/sound"
)

// handleBeep plays one notification (or a single sample beep) and waits for
// it to finish. Useful to check the output device and pick a volume.
func handleBeep(ctx context.Context, args []string, stdout io.Writer) error {
	ns := config.GetNotifySettings()

	fs := flag.NewFlagSet("beep", flag.ContinueOnError)
	fs.SetOutput(stdout)
	volume := fs.Int("volume", ns.GetVolume(), "Volume 0-3")
	sample := fs.Bool("sample", false, "Play a single beep instead of a full performance")
	output := fs.String("output", ns.Output, "Sound output: auto, command, bell or none")
	fs.Usage = func() {
		fmt.Fprintln(stdout, "Usage: agent-pulse beep [--volume N] [--sample] [--output NAME]")
		fmt.Fprintln(stdout)
		fs.PrintDefaults()
	}
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *volume < sound.VolumeSilent || *volume > sound.VolumeLarge {
		return fmt.Errorf("--volume must be between %d and %d", sound.VolumeSilent, sound.VolumeLarge)
	}

	out, err := sound.SelectOutput(*output)
	if err != nil {
		return fmt.Errorf("sound output: %w", err)
	}
	player := sound.NewPlayer(out, sound.WithDuration(ns.Duration()))
	defer player.Close()
	player.SetVolume(*volume)

	fmt.Fprintf(stdout, "Playing at volume %d via %s\n", *volume, player.OutputName())
	if *sample {
		player.PlaySample()
	} else {
		player.Play()
	}

	done := make(chan struct{})
	go func() {
		player.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		player.Stop()
	}
	return nil
}
