package resources

import (
	"github.com/rs/zerolog"
	otelog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
)

// ZerologHook mirrors every zerolog record into the OTel log pipeline. The
// record still prints to stdout; the hook only adds the OTLP export.
type ZerologHook struct {
	logger         otelog.Logger
	serviceName    string
	serviceVersion string
}

func NewZerologHook(serviceName string, serviceVersion string) *ZerologHook {
	return &ZerologHook{
		logger:         global.GetLoggerProvider().Logger(serviceName),
		serviceName:    serviceName,
		serviceVersion: serviceVersion,
	}
}

func (h *ZerologHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	if e == nil || level == zerolog.NoLevel {
		return
	}

	var rec otelog.Record

	sev, sevText := h.zerologLevelToOTel(level)

	rec.SetSeverity(sev)
	rec.SetSeverityText(sevText)
	rec.SetBody(otelog.StringValue(msg))
	rec.AddAttributes(
		otelog.String("service.name", h.serviceName),
		otelog.String("service.version", h.serviceVersion),
	)

	h.logger.Emit(e.GetCtx(), rec)
}

func (h *ZerologHook) zerologLevelToOTel(level zerolog.Level) (otelog.Severity, string) {
	switch level {
	case zerolog.TraceLevel:
		return otelog.SeverityTrace, "TRACE"
	case zerolog.DebugLevel:
		return otelog.SeverityDebug, "DEBUG"
	case zerolog.InfoLevel:
		return otelog.SeverityInfo, "INFO"
	case zerolog.WarnLevel:
		return otelog.SeverityWarn, "WARN"
	case zerolog.ErrorLevel:
		return otelog.SeverityError, "ERROR"
	case zerolog.FatalLevel:
		return otelog.SeverityFatal, "FATAL"
	case zerolog.PanicLevel:
		return otelog.SeverityFatal4, "FATAL"
	default:
		return otelog.SeverityInfo, "INFO"
	}
}
