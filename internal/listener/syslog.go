package listener

import (
	"errors"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/leodido/go-syslog/v4"
	"github.com/leodido/go-syslog/v4/rfc5424"
	"go.uber.org/zap"

	"go-tablelogger/internal/logging"
	"go-tablelogger/internal/models"
)

// DefaultLogName names records whose sender left APP-NAME empty.
const DefaultLogName = "syslog"

const maxDatagram = 64 * 1024

// severities maps syslog severity 0..7 onto the stored level ordinal and label.
var severities = [8]struct {
	ordinal int
	label   string
}{
	{5, "EMERGENCY"},
	{5, "ALERT"},
	{5, "CRITICAL"},
	{4, "ERROR"},
	{3, "WARN"},
	{2, "NOTICE"},
	{2, "INFO"},
	{1, "DEBUG"},
}

// UDPListener receives RFC 5424 messages over UDP and enqueues them as log records.
type UDPListener struct {
	addr     string
	sink     logging.RecordSink
	nodeName string
	logger   *zap.Logger
	now      func() time.Time

	conn *net.UDPConn
	wg   sync.WaitGroup
}

// NewUDPListener creates a listener for addr (host:port). Records without a hostname
// are attributed to nodeName.
func NewUDPListener(addr string, sink logging.RecordSink, nodeName string, logger *zap.Logger) *UDPListener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UDPListener{
		addr:     addr,
		sink:     sink,
		nodeName: nodeName,
		logger:   logger,
		now:      time.Now,
	}
}

// Start binds the socket and serves datagrams in a background goroutine.
func (l *UDPListener) Start() error {
	udpAddr, err := net.ResolveUDPAddr("udp", l.addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return err
	}
	l.conn = conn
	l.wg.Add(1)
	go l.serve()
	l.logger.Info("Syslog UDP listener is running", zap.String("address", conn.LocalAddr().String()))
	return nil
}

// Addr returns the bound address, or nil before Start.
func (l *UDPListener) Addr() net.Addr {
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Close stops the listener and waits for the read loop to exit.
func (l *UDPListener) Close() error {
	if l.conn == nil {
		return nil
	}
	err := l.conn.Close()
	l.wg.Wait()
	l.logger.Info("Syslog UDP listener stopped")
	return err
}

func (l *UDPListener) serve() {
	defer l.wg.Done()
	parser := rfc5424.NewParser(rfc5424.WithBestEffort())
	buffer := make([]byte, maxDatagram)
	for {
		n, _, err := l.conn.ReadFromUDP(buffer)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.logger.Warn("Error reading syslog datagram", zap.Error(err))
			continue
		}
		l.handle(parser, string(buffer[:n]))
	}
}

// handle parses every line of a datagram; senders may batch several messages in one.
func (l *UDPListener) handle(parser syslog.Machine, datagram string) {
	for _, line := range strings.Split(strings.ReplaceAll(datagram, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parsed, err := parser.Parse([]byte(line))
		if err != nil {
			l.logger.Debug("Dropping unparseable syslog message", zap.Error(err), zap.String("message", line))
			continue
		}
		msg, ok := parsed.(*rfc5424.SyslogMessage)
		if !ok {
			continue
		}
		l.sink.Enqueue(ToRecord(msg, l.nodeName, l.now()))
	}
}

// ToRecord converts a parsed syslog message. Header fields become one map scope and
// every structured data element another, keyed "SD-ID.param".
func ToRecord(msg *rfc5424.SyslogMessage, fallbackNode string, received time.Time) models.LogRecord {
	rec := models.LogRecord{
		EventTime:      received,
		NodeName:       fallbackNode,
		LogName:        DefaultLogName,
		LogLevel:       2,
		LogLevelString: "INFO",
	}
	if msg.Timestamp != nil {
		rec.EventTime = *msg.Timestamp
	}
	if msg.Hostname != nil && *msg.Hostname != "" {
		rec.NodeName = *msg.Hostname
	}
	if msg.Appname != nil && *msg.Appname != "" {
		rec.LogName = *msg.Appname
	}
	if msg.Message != nil {
		rec.Message = *msg.Message
	}

	var header []models.KeyValue
	if msg.Priority != nil {
		sev := *msg.Priority % 8
		rec.LogLevel = severities[sev].ordinal
		rec.LogLevelString = severities[sev].label
		header = append(header, models.KeyValue{Key: "Facility", Value: int(*msg.Priority / 8)})
	}
	if msg.ProcID != nil {
		header = append(header, models.KeyValue{Key: "ProcId", Value: *msg.ProcID})
	}
	if msg.MsgID != nil {
		header = append(header, models.KeyValue{Key: "MsgId", Value: *msg.MsgID})
		if id, err := strconv.Atoi(*msg.MsgID); err == nil {
			rec.EventID = id
		}
	}
	if len(header) > 0 {
		rec.Scopes = append(rec.Scopes, models.MapScope(header...))
	}

	if msg.StructuredData != nil {
		sd := *msg.StructuredData
		ids := make([]string, 0, len(sd))
		for id := range sd {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			params := make(map[string]any, len(sd[id]))
			for k, v := range sd[id] {
				params[id+"."+k] = v
			}
			rec.Scopes = append(rec.Scopes, models.ScopeFromMap(params))
		}
	}
	return rec
}
