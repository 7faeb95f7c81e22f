// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Default values shared with the packages that consume them.
const (
	DefaultHeadroom                = 5.0
	DefaultMaxSampleRate           = 8_000_000
	DefaultAudioInspectorBandwidth = 44_100
	DefaultAudioBufferSize         = 4096
	DefaultSaverBufferSize         = 8 << 20
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("main.name", "sigscope")
	viper.SetDefault("main.debug", false)
	viper.SetDefault("main.autostart", false)

	viper.SetDefault("logging.default_level", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.file_output.enabled", false)
	viper.SetDefault("logging.file_output.path", "logs/sigscope.log")
	viper.SetDefault("logging.file_output.level", "info")
	viper.SetDefault("logging.tail_size", 64)

	viper.SetDefault("profile.label", "Simulated receiver")
	viper.SetDefault("profile.type", "sdr")
	viper.SetDefault("profile.device", "sim")
	viper.SetDefault("profile.path", "")
	viper.SetDefault("profile.samplerate", 250_000)
	viper.SetDefault("profile.frequency", 100e6)
	viper.SetDefault("profile.lnb", 0.0)
	viper.SetDefault("profile.antenna", "RX")
	viper.SetDefault("profile.bandwidth", 0.0)
	viper.SetDefault("profile.loop", false)

	viper.SetDefault("source.dcremove", true)
	viper.SetDefault("source.iqreverse", false)
	viper.SetDefault("source.agc", false)
	viper.SetDefault("source.throttle", false)
	viper.SetDefault("source.throttlerate", 250_000)
	viper.SetDefault("source.record", false)
	viper.SetDefault("source.recordpath", "captures")

	viper.SetDefault("audio.enabled", false)
	viper.SetDefault("audio.device", "")
	viper.SetDefault("audio.samplerate", DefaultAudioInspectorBandwidth)
	viper.SetDefault("audio.cutoff", 15_000.0)
	viper.SetDefault("audio.volume", 50.0)
	viper.SetDefault("audio.demod", "fm")
	viper.SetDefault("audio.buffersize", DefaultAudioBufferSize)

	viper.SetDefault("inspector.class", "psk")
	viper.SetDefault("inspector.bandwidth", 10_000.0)

	viper.SetDefault("spectrum.headroom", DefaultHeadroom)
	viper.SetDefault("spectrum.cursor", 0.0)
	viper.SetDefault("spectrum.displaybandwidth", 10_000.0)

	viper.SetDefault("limits.maxsamplerate", DefaultMaxSampleRate)
	viper.SetDefault("limits.audioinspectorbandwidth", DefaultAudioInspectorBandwidth)
	viper.SetDefault("limits.clamppolicy", "accept")

	viper.SetDefault("saver.buffersize", DefaultSaverBufferSize)
	viper.SetDefault("saver.reportperiod", time.Second)
	viper.SetDefault("saver.minfreebytes", uint64(64<<20))

	viper.SetDefault("analyzer.fftsize", 1024)
	viper.SetDefault("analyzer.psdrate", 15.0)
	viper.SetDefault("analyzer.chunksize", 4096)
	viper.SetDefault("analyzer.toneoffset", 25_000.0)
	viper.SetDefault("analyzer.tonelevel", 0.5)
	viper.SetDefault("analyzer.noiselevel", 0.05)
	viper.SetDefault("analyzer.haltdelay", 50*time.Millisecond)

	viper.SetDefault("api.enabled", true)
	viper.SetDefault("api.listen", "127.0.0.1:8090")
	viper.SetDefault("api.streamrate", 10.0)
	viper.SetDefault("api.streamburst", 2)

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.clientid", "")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.passwordfile", "")
	viper.SetDefault("mqtt.topicprefix", "sigscope")
	viper.SetDefault("mqtt.qos", 0)
	viper.SetDefault("mqtt.retain", false)

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.sentrydsn", "")
	viper.SetDefault("telemetry.sentrydsnfile", "")

	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.interval", 30*time.Second)
	viper.SetDefault("monitor.warning", 85.0)
	viper.SetDefault("monitor.critical", 95.0)
	viper.SetDefault("monitor.hysteresis", 5.0)
	viper.SetDefault("monitor.resendinterval", 30*time.Minute)

	viper.SetDefault("events.buffersize", 1024)
	viper.SetDefault("events.workers", 1)
}
