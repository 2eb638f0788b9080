package cli

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はコマンドライン引数から解析された設定を保持する
type Config struct {
	MIDIPath     string        // 再生するMIDIファイルのパス
	SoundFont    string        // SoundFontファイルのパス（空の場合は自動検出）
	TempoScale   float64       // 再生速度の倍率
	Transpose    int           // 全体のトランスポーズ（オクターブ）
	Loop         bool          // ループ再生
	LoopOffset   float64       // ループ時の再開位置（秒）
	Mute         []int         // ミュートするチャンネル
	Solo         []int         // ソロにするチャンネル
	SampleRate   int           // 出力サンプルレート
	WAVPath      string        // WAVファイル出力先（指定時はオフラインレンダリング）
	Timeout      time.Duration // タイムアウト時間（0は無制限）
	LogLevel     string        // ログレベル（debug, info, warn, error）
	Headless     bool          // ヘッドレスモード（オーディオデバイスを使わない）
	ListChannels bool          // チャンネル一覧を表示して終了
	ShowHelp     bool          // ヘルプ表示フラグ
}

// channelCount はMIDIチャンネル数
const channelCount = 16

// boolFlags は値を取らないフラグ
var boolFlags = map[string]bool{
	"h":             true,
	"help":          true,
	"headless":      true,
	"loop":          true,
	"list-channels": true,
}

// ParseArgs コマンドライン引数を解析してConfigを返す
func ParseArgs(args []string) (*Config, error) {
	// 引数を並べ替え：フラグを前に、位置引数を後ろに
	reorderedArgs := reorderArgs(args)

	fs := flag.NewFlagSet("sf2midi", flag.ContinueOnError)

	config := &Config{}

	var timeoutSec int
	var mute, solo string
	fs.StringVar(&config.SoundFont, "soundfont", "", "SoundFontファイルのパス")
	fs.StringVar(&config.SoundFont, "s", "", "SoundFontファイルのパス（短縮形）")
	fs.Float64Var(&config.TempoScale, "tempo", 1.0, "再生速度の倍率")
	fs.IntVar(&config.Transpose, "transpose", 0, "トランスポーズ（オクターブ）")
	fs.BoolVar(&config.Loop, "loop", false, "ループ再生")
	fs.Float64Var(&config.LoopOffset, "loop-offset", 0, "ループ時の再開位置（秒）")
	fs.StringVar(&mute, "mute", "", "ミュートするチャンネル（カンマ区切り）")
	fs.StringVar(&solo, "solo", "", "ソロにするチャンネル（カンマ区切り）")
	fs.IntVar(&config.SampleRate, "rate", 44100, "出力サンプルレート（Hz）")
	fs.StringVar(&config.WAVPath, "wav", "", "WAVファイルに書き出す")
	fs.StringVar(&config.WAVPath, "o", "", "WAVファイルに書き出す（短縮形）")
	fs.IntVar(&timeoutSec, "timeout", 0, "タイムアウト時間（秒）")
	fs.IntVar(&timeoutSec, "t", 0, "タイムアウト時間（秒）（短縮形）")
	fs.StringVar(&config.LogLevel, "log-level", "info", "ログレベル（debug, info, warn, error）")
	fs.StringVar(&config.LogLevel, "l", "info", "ログレベル（短縮形）")
	fs.BoolVar(&config.Headless, "headless", false, "ヘッドレスモード")
	fs.BoolVar(&config.ListChannels, "list-channels", false, "チャンネル一覧を表示")
	fs.BoolVar(&config.ShowHelp, "help", false, "ヘルプを表示")
	fs.BoolVar(&config.ShowHelp, "h", false, "ヘルプを表示（短縮形）")

	if err := fs.Parse(reorderedArgs); err != nil {
		return nil, err
	}

	// 環境変数からの設定（コマンドラインフラグが優先）
	if !config.Headless {
		if headlessEnv := os.Getenv("HEADLESS"); headlessEnv != "" {
			config.Headless = headlessEnv == "1" || strings.ToLower(headlessEnv) == "true"
		}
	}

	if config.SoundFont == "" {
		config.SoundFont = os.Getenv("SOUNDFONT")
	}

	// 環境変数からタイムアウトを取得（コマンドラインフラグが優先）
	if timeoutSec == 0 {
		if timeoutEnv := os.Getenv("TIMEOUT"); timeoutEnv != "" {
			if t, err := strconv.Atoi(timeoutEnv); err == nil && t > 0 {
				timeoutSec = t
			}
		}
	}

	// 環境変数からログレベルを取得（コマンドラインフラグが優先）
	if config.LogLevel == "info" {
		if logLevelEnv := os.Getenv("LOG_LEVEL"); logLevelEnv != "" {
			config.LogLevel = strings.ToLower(logLevelEnv)
		}
	}

	// タイムアウトの検証
	if timeoutSec < 0 {
		return nil, fmt.Errorf("timeout must be non-negative, got %d", timeoutSec)
	}
	config.Timeout = time.Duration(timeoutSec) * time.Second

	// ログレベルの検証
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[config.LogLevel] {
		return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.LogLevel)
	}

	// 再生パラメータの検証
	if !(config.TempoScale > 0) {
		return nil, fmt.Errorf("tempo must be positive, got %v", config.TempoScale)
	}
	if config.LoopOffset < 0 {
		return nil, fmt.Errorf("loop offset must be non-negative, got %v", config.LoopOffset)
	}

	var err error
	if config.Mute, err = parseChannels(mute); err != nil {
		return nil, fmt.Errorf("invalid -mute: %w", err)
	}
	if config.Solo, err = parseChannels(solo); err != nil {
		return nil, fmt.Errorf("invalid -solo: %w", err)
	}

	// 位置引数（MIDIファイルのパス）
	if fs.NArg() > 0 {
		config.MIDIPath = fs.Arg(0)
	}

	return config, nil
}

// parseChannels カンマ区切りのチャンネル番号（0-15）を解析する
func parseChannels(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	var channels []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		ch, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("channel %q is not a number", part)
		}
		if ch < 0 || ch >= channelCount {
			return nil, fmt.Errorf("channel %d out of range 0-%d", ch, channelCount-1)
		}
		channels = append(channels, ch)
	}
	return channels, nil
}

// reorderArgs 引数を並べ替えて、フラグを前に、位置引数を後ろに配置する
func reorderArgs(args []string) []string {
	var flags []string
	var positional []string

	for i := 0; i < len(args); i++ {
		arg := args[i]

		// フラグかどうかを判定（-または--で始まる）
		if len(arg) > 0 && arg[0] == '-' {
			flags = append(flags, arg)

			// 次の引数が値である可能性をチェック
			// （-t 5 のような場合）
			if i+1 < len(args) && len(args[i+1]) > 0 && args[i+1][0] != '-' {
				// ブール型フラグや -x=v 形式でない場合は次の引数も追加
				name := strings.TrimLeft(arg, "-")
				if !boolFlags[name] && !strings.Contains(name, "=") {
					i++
					flags = append(flags, args[i])
				}
			}
		} else {
			// 位置引数
			positional = append(positional, arg)
		}
	}

	// フラグを前に、位置引数を後ろに配置
	return append(flags, positional...)
}

// PrintHelp ヘルプメッセージを表示
func PrintHelp() {
	fmt.Fprintf(os.Stdout, `sf2midi - SoundFont MIDI Player

Usage:
  sf2midi [options] <song.mid>

Arguments:
  song.mid      再生するStandard MIDI Fileのパス

Options:
  -s, --soundfont <path>      SoundFontファイル（省略時は自動検出）
  --tempo <scale>             再生速度の倍率（デフォルト: 1.0）
  --transpose <octaves>       全体のトランスポーズ（オクターブ単位）
  --loop                      ループ再生
  --loop-offset <seconds>     ループ時の再開位置（秒）
  --mute <channels>           ミュートするチャンネル（例: 0,9）
  --solo <channels>           ソロにするチャンネル（例: 1）
  --rate <hz>                 出力サンプルレート（デフォルト: 44100）
  -o, --wav <path>            オーディオデバイスの代わりにWAVファイルへ書き出す
  -t, --timeout <seconds>     指定秒数後にプログラムを終了（デフォルト: 無制限）
  -l, --log-level <level>     ログレベル: debug, info, warn, error（デフォルト: info）
  --headless                  ヘッドレスモード（オーディオデバイスなしでレンダリング）
  --list-channels             使用チャンネルとプリセットを表示して終了
  -h, --help                  このヘルプを表示

SoundFont Search Order:
  1. --soundfont または SOUNDFONT
  2. 組み込みのSoundFont
  3. カレントディレクトリの .sf2 ファイル
  4. MIDIファイルと同じディレクトリの .sf2 ファイル

Environment Variables:
  SOUNDFONT=<path>            SoundFontファイル
  HEADLESS=1                  ヘッドレスモードを有効化
  TIMEOUT=<seconds>           タイムアウト時間（秒）
  LOG_LEVEL=<level>           ログレベル

Examples:
  sf2midi song.mid                        デバイスで再生
  sf2midi -s GeneralUser-GS.sf2 song.mid  SoundFontを指定
  sf2midi --solo 9 song.mid               ドラムだけを再生
  sf2midi --loop --loop-offset 4.5 song.mid
  sf2midi -o out.wav song.mid             WAVファイルに書き出す
  sf2midi --list-channels song.mid        チャンネル一覧を表示
`)
}
