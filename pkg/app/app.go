package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"text/tabwriter"

	"github.com/zurustar/sf2midi/pkg/cli"
	"github.com/zurustar/sf2midi/pkg/logger"
	"github.com/zurustar/sf2midi/pkg/output"
	"github.com/zurustar/sf2midi/pkg/playback"
	"github.com/zurustar/sf2midi/pkg/sequence"
	"github.com/zurustar/sf2midi/pkg/synth"
)

// ErrNoSoundFont is returned when no SoundFont can be found.
var ErrNoSoundFont = errors.New("no SoundFont found (use -soundfont or SOUNDFONT)")

// ErrEndlessRender is returned when an offline render would never finish.
var ErrEndlessRender = errors.New("looping playback needs -timeout when rendering offline")

// headlessChunkFrames is the render size used without an audio device.
const headlessChunkFrames = 4096

// Application はアプリケーションのメインロジックを管理する
type Application struct {
	config  *cli.Config
	log     *slog.Logger
	bundled fs.FS     // 組み込みSoundFont（nilの場合はなし）
	out     io.Writer // チャンネル一覧などの出力先
}

// New Applicationを作成
func New(bundled fs.FS) *Application {
	return &Application{
		bundled: bundled,
		out:     os.Stdout,
	}
}

// Run アプリケーションを実行
func (app *Application) Run(args []string) error {
	// 1. コマンドライン引数の解析
	if err := app.parseArgs(args); err != nil {
		return fmt.Errorf("failed to parse args: %w", err)
	}

	if app.config.ShowHelp || app.config.MIDIPath == "" {
		cli.PrintHelp()
		return nil
	}

	// 2. ロガーの初期化
	if err := app.initLogger(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app.log.Info("Application started")

	// 3. MIDIファイルの読み込み
	seq, err := sequence.Load(nil, app.config.MIDIPath)
	if err != nil {
		return fmt.Errorf("failed to load MIDI file: %w", err)
	}
	app.log.Info("MIDI file loaded",
		"path", app.config.MIDIPath,
		"events", seq.Len(),
		"length", seq.Length(),
		"ppq", seq.TempoMap().PPQ(),
		"tempo_changes", len(seq.TempoMap().Changes()),
		"tracks", seq.TrackNames())

	// 4. SoundFontの読み込み
	bank, err := app.loadSoundFont()
	if err != nil {
		return fmt.Errorf("failed to load SoundFont: %w", err)
	}

	// 5. ストリームの作成
	stream, err := playback.NewStream(bank, seq, app.streamOptions()...)
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	if app.config.ListChannels {
		return app.printChannels(stream)
	}

	// 6. 再生
	pb, err := stream.NewPlayback()
	if err != nil {
		return fmt.Errorf("failed to create playback: %w", err)
	}
	defer pb.Close()

	if err := app.applyChannelControls(pb); err != nil {
		return err
	}

	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		app.watchNotifications(pb)
	}()

	switch {
	case app.config.WAVPath != "":
		err = app.renderWAV(pb)
	case app.config.Headless:
		err = app.renderHeadless(pb)
	default:
		err = app.play(pb)
	}

	pb.Close()
	<-watchDone

	if err != nil {
		return err
	}
	app.log.Info("Application terminated normally",
		"position", pb.Position(),
		"loops", pb.LoopCount(),
		"dropped_notifications", pb.DroppedNotifications())
	return nil
}

// parseArgs コマンドライン引数を解析
func (app *Application) parseArgs(args []string) error {
	config, err := cli.ParseArgs(args)
	if err != nil {
		return err
	}
	app.config = config
	return nil
}

// initLogger ロガーを初期化
func (app *Application) initLogger() error {
	if err := logger.InitLogger(app.config.LogLevel); err != nil {
		return err
	}
	app.log = logger.GetLogger()
	return nil
}

// loadSoundFont SoundFontを検索して読み込む
func (app *Application) loadSoundFont() (*synth.SoundFont, error) {
	loc := findSoundFont(app.bundled, app.config.SoundFont, filepath.Dir(app.config.MIDIPath))
	if loc == nil {
		return nil, ErrNoSoundFont
	}

	bank, err := synth.LoadSoundFontFS(loc.FileSystem, loc.Path)
	if err != nil {
		return nil, err
	}
	app.log.Info("SoundFont loaded",
		"path", loc.Path,
		"embedded", loc.IsEmbedded(),
		"presets", len(bank.PresetList()))
	return bank, nil
}

// streamOptions 設定から再生オプションを作成
func (app *Application) streamOptions() []playback.Option {
	return []playback.Option{
		playback.WithSampleRate(app.config.SampleRate),
		playback.WithTempoScale(app.config.TempoScale),
		playback.WithTranspose(app.config.Transpose),
		playback.WithLoop(app.config.Loop),
		playback.WithLoopOffset(app.config.LoopOffset),
		playback.WithLogger(logger.Component("playback")),
	}
}

// applyChannelControls ミュートとソロを適用
func (app *Application) applyChannelControls(pb *playback.Playback) error {
	for _, ch := range app.config.Mute {
		if err := pb.SetMuted(ch, true); err != nil {
			return fmt.Errorf("failed to mute channel %d: %w", ch, err)
		}
	}
	for _, ch := range app.config.Solo {
		if err := pb.SetSolo(ch, true); err != nil {
			return fmt.Errorf("failed to solo channel %d: %w", ch, err)
		}
	}
	return nil
}

// printChannels 使用チャンネルとプリセットを表示
func (app *Application) printChannels(stream *playback.Stream) error {
	w := tabwriter.NewWriter(app.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CH\tPROGRAM\tNOTES\tPRESET")
	for _, info := range stream.Channels() {
		program := fmt.Sprint(info.Program)
		if info.Drums {
			program += " (drums)"
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", info.Channel, program, info.NoteCount, info.PresetName)
	}
	fmt.Fprintf(w, "\nlength: %.2fs\n", stream.Length())
	return w.Flush()
}

// watchNotifications テンポとプログラムの変更をログに出力
func (app *Application) watchNotifications(pb *playback.Playback) {
	notifications := pb.Notifications()
	if notifications == nil {
		return
	}
	for n := range notifications {
		switch n.Kind {
		case sequence.SetTempo:
			app.log.Debug("Tempo", "bpm", n.Param1)
		case sequence.ProgramChange:
			app.log.Debug("Program", "channel", n.Channel, "program", n.Param1)
		}
	}
}

// renderWAV WAVファイルに書き出す
func (app *Application) renderWAV(pb *playback.Playback) error {
	if app.config.Loop && app.config.Timeout == 0 {
		return ErrEndlessRender
	}

	f, err := os.Create(app.config.WAVPath)
	if err != nil {
		return fmt.Errorf("failed to create WAV file: %w", err)
	}
	defer f.Close()

	if err := pb.Start(0); err != nil {
		return err
	}
	frames, err := output.WriteWAV(f, pb, app.config.Timeout)
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close WAV file: %w", err)
	}

	app.log.Info("WAV file written",
		"path", app.config.WAVPath,
		"frames", frames,
		"seconds", float64(frames)/float64(pb.SampleRate()))
	return nil
}

// renderHeadless オーディオデバイスを使わずに最後までレンダリング
func (app *Application) renderHeadless(pb *playback.Playback) error {
	if app.config.Loop && app.config.Timeout == 0 {
		return ErrEndlessRender
	}
	app.log.Info("Headless mode: rendering without audio device")

	if err := pb.Start(0); err != nil {
		return err
	}
	limit := int64(-1)
	if app.config.Timeout > 0 {
		limit = int64(app.config.Timeout.Seconds() * float64(pb.SampleRate()))
	}

	buf := make([]float32, headlessChunkFrames*2)
	var frames int64
	for pb.IsPlaying() && (limit < 0 || frames < limit) {
		frames += int64(pb.Render(buf))
	}
	app.log.Info("Headless render finished", "frames", frames)
	return nil
}

// play オーディオデバイスで再生
func (app *Application) play(pb *playback.Playback) error {
	var stream *output.Stream
	if app.config.Loop {
		stream = output.NewStream(pb)
	} else {
		stream = output.NewFiniteStream(pb)
	}

	player, err := output.NewPlayer(stream, 0)
	if err != nil {
		return fmt.Errorf("failed to open audio device: %w", err)
	}
	defer player.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := player.Play(0); err != nil {
		return err
	}
	app.log.Info("Playing", "path", app.config.MIDIPath)

	if player.Wait(ctx.Done(), app.config.Timeout) {
		app.log.Info("Playback finished")
	} else {
		app.log.Info("Playback interrupted", "position", stream.Position())
	}
	return nil
}
