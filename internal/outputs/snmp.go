package outputs

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/config"
	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/metrics"
	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/models"
)

// SNMPOutput provides an SNMP agent for polling analysis statistics and the
// most recent analyses. Nothing is kept beyond the in-memory ring.
type SNMPOutput struct {
	config *config.SNMPConfig
	cache  *metrics.RecordCache
	hosts  *metrics.HostLimiter
	done   chan struct{}
	wg     sync.WaitGroup

	mu        sync.RWMutex
	stats     map[string]*hostStats
	hostOrder []string

	snmpConn *net.UDPConn

	// Scalar OIDs
	oidTree map[string]oidHandler

	generalOID string
	hostsOID   string
	recentOID  string
}

type hostStats struct {
	TotalAnalyses      int64
	SuccessfulAnalyses int64
	FailedAnalyses     int64
	LastSuccessTime    time.Time
	LastFailureTime    time.Time
	LastDurationMs     int64
	AvgDurationMs      float64
}

// oidHandler returns the value of a scalar OID
type oidHandler func() gosnmp.SnmpPDU

// Table columns
//
//	<base>.1.<n>.0         general statistics
//	<base>.2.<host>.<col>  per-host statistics
//	<base>.3.<row>.<col>   recent analyses, oldest first
const (
	hostColumns   = 7
	recentColumns = 9
)

// NewSNMPOutput creates an SNMP agent and starts listening.
// It returns nil when the agent is disabled.
func NewSNMPOutput(cfg *config.SNMPConfig) (*SNMPOutput, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	s := newSNMPOutput(cfg)

	if err := s.start(); err != nil {
		return nil, fmt.Errorf("failed to start SNMP server: %w", err)
	}

	slog.Info("SNMP agent listening",
		"addr", s.snmpConn.LocalAddr().String(),
		"enterprise_oid", s.baseOID())

	return s, nil
}

// newSNMPOutput builds the agent state without opening a socket
func newSNMPOutput(cfg *config.SNMPConfig) *SNMPOutput {
	s := &SNMPOutput{
		config:  cfg,
		cache:   metrics.NewRecordCache(cfg.RecentSize),
		hosts:   metrics.NewHostLimiter(cfg.MaxHosts),
		done:    make(chan struct{}),
		stats:   make(map[string]*hostStats),
		oidTree: make(map[string]oidHandler),
	}

	base := s.baseOID()
	s.generalOID = base + ".1"
	s.hostsOID = base + ".2"
	s.recentOID = base + ".3"

	s.initializeOIDTree()
	return s
}

func (s *SNMPOutput) baseOID() string {
	oid := strings.TrimSuffix(s.config.EnterpriseOID, ".")
	if !strings.HasPrefix(oid, ".") {
		oid = "." + oid
	}
	return oid
}

// initializeOIDTree sets up the general statistics scalars
func (s *SNMPOutput) initializeOIDTree() {
	scalar := func(n int, fn func() gosnmp.SnmpPDU) {
		s.oidTree[fmt.Sprintf("%s.%d.0", s.generalOID, n)] = fn
	}

	scalar(1, func() gosnmp.SnmpPDU { return integer(s.cache.Count()) })
	scalar(2, func() gosnmp.SnmpPDU { return integer(s.config.RecentSize) })
	scalar(3, func() gosnmp.SnmpPDU {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return integer(len(s.stats))
	})
	scalar(4, func() gosnmp.SnmpPDU {
		return counter(s.sumStats(func(st *hostStats) int64 { return st.TotalAnalyses }))
	})
	scalar(5, func() gosnmp.SnmpPDU {
		return counter(s.sumStats(func(st *hostStats) int64 { return st.SuccessfulAnalyses }))
	})
	scalar(6, func() gosnmp.SnmpPDU {
		return counter(s.sumStats(func(st *hostStats) int64 { return st.FailedAnalyses }))
	})
}

func (s *SNMPOutput) sumStats(field func(*hostStats) int64) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, st := range s.stats {
		total += field(st)
	}
	return total
}

// start opens the UDP socket and the packet loop
func (s *SNMPOutput) start() error {
	addr := fmt.Sprintf("%s:%d", s.config.ListenAddress, s.config.Port)
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}

	s.snmpConn = conn

	s.wg.Add(1)
	go s.handleSNMPPackets()

	return nil
}

// handleSNMPPackets processes incoming SNMP requests
func (s *SNMPOutput) handleSNMPPackets() {
	defer s.wg.Done()
	defer s.snmpConn.Close()

	buffer := make([]byte, 65535)

	for {
		select {
		case <-s.done:
			return
		default:
		}

		// Read deadline lets the loop notice shutdown
		s.snmpConn.SetReadDeadline(time.Now().Add(1 * time.Second))

		n, remoteAddr, err := s.snmpConn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			slog.Debug("SNMP read error", "error", err)
			continue
		}

		data := make([]byte, n)
		copy(data, buffer[:n])
		go s.processSNMPPacket(data, remoteAddr)
	}
}

// processSNMPPacket handles a single SNMP request
func (s *SNMPOutput) processSNMPPacket(data []byte, remoteAddr *net.UDPAddr) {
	packet, err := gosnmp.Default.SnmpDecodePacket(data)
	if err != nil {
		slog.Debug("failed to decode SNMP packet", "remote", remoteAddr.String(), "error", err)
		return
	}

	response := s.handlePacket(packet)
	if response == nil {
		slog.Debug("ignoring SNMP request", "remote", remoteAddr.String(), "pdu_type", packet.PDUType)
		return
	}

	responseData, err := response.MarshalMsg()
	if err != nil {
		slog.Warn("failed to marshal SNMP response", "error", err)
		return
	}

	if _, err := s.snmpConn.WriteToUDP(responseData, remoteAddr); err != nil {
		slog.Warn("failed to send SNMP response", "remote", remoteAddr.String(), "error", err)
	}
}

// handlePacket answers GET, GETNEXT and GETBULK requests carrying the
// configured community. Anything else yields nil.
func (s *SNMPOutput) handlePacket(packet *gosnmp.SnmpPacket) *gosnmp.SnmpPacket {
	if packet.Community != s.config.Community {
		return nil
	}

	response := &gosnmp.SnmpPacket{
		Version:   packet.Version,
		Community: packet.Community,
		PDUType:   gosnmp.GetResponse,
		RequestID: packet.RequestID,
		Variables: make([]gosnmp.SnmpPDU, 0, len(packet.Variables)),
	}

	switch packet.PDUType {
	case gosnmp.GetRequest:
		for _, v := range packet.Variables {
			response.Variables = append(response.Variables, s.getOIDValue(v.Name))
		}
	case gosnmp.GetNextRequest:
		for _, v := range packet.Variables {
			response.Variables = append(response.Variables, s.getNextOID(v.Name))
		}
	case gosnmp.GetBulkRequest:
		maxReps := packet.MaxRepetitions
		if maxReps == 0 {
			maxReps = 10
		}
		for _, v := range packet.Variables {
			current := v.Name
			for i := uint32(0); i < maxReps; i++ {
				pdu := s.getNextOID(current)
				if pdu.Type == gosnmp.EndOfMibView {
					break
				}
				response.Variables = append(response.Variables, pdu)
				current = pdu.Name
			}
		}
	default:
		return nil
	}

	return response
}

// getOIDValue retrieves the value for a specific OID
func (s *SNMPOutput) getOIDValue(oid string) gosnmp.SnmpPDU {
	oid = normalizeOID(oid)

	if handler, ok := s.oidTree[oid]; ok {
		pdu := handler()
		pdu.Name = oid
		return pdu
	}

	var pdu gosnmp.SnmpPDU
	switch {
	case strings.HasPrefix(oid, s.hostsOID+"."):
		pdu = s.getHostOID(oid)
	case strings.HasPrefix(oid, s.recentOID+"."):
		pdu = s.getRecentOID(oid)
	default:
		pdu = noSuchInstance()
	}
	pdu.Name = oid
	return pdu
}

// getNextOID finds the next OID in the tree
func (s *SNMPOutput) getNextOID(oid string) gosnmp.SnmpPDU {
	oid = normalizeOID(oid)

	for _, next := range s.getAllOIDs() {
		if oidCompare(oid, next) < 0 {
			return s.getOIDValue(next)
		}
	}

	return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.EndOfMibView}
}

// getAllOIDs returns all available OIDs in sorted order
func (s *SNMPOutput) getAllOIDs() []string {
	s.mu.RLock()
	hosts := len(s.hostOrder)
	s.mu.RUnlock()
	rows := s.cache.Count()

	oids := make([]string, 0, len(s.oidTree)+hosts*hostColumns+rows*recentColumns)
	for oid := range s.oidTree {
		oids = append(oids, oid)
	}
	for i := 1; i <= hosts; i++ {
		for col := 1; col <= hostColumns; col++ {
			oids = append(oids, fmt.Sprintf("%s.%d.%d", s.hostsOID, i, col))
		}
	}
	for i := 1; i <= rows; i++ {
		for col := 1; col <= recentColumns; col++ {
			oids = append(oids, fmt.Sprintf("%s.%d.%d", s.recentOID, i, col))
		}
	}

	sortOIDs(oids)
	return oids
}

// tableIndex parses "<prefix>.<row>.<col>"
func tableIndex(oid, prefix string) (row, col int, ok bool) {
	parts := strings.Split(strings.TrimPrefix(oid, prefix+"."), ".")
	if len(parts) != 2 {
		return 0, 0, false
	}
	row, err1 := strconv.Atoi(parts[0])
	col, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || row < 1 {
		return 0, 0, false
	}
	return row, col, true
}

// getHostOID serves <base>.2.<host>.<col>
func (s *SNMPOutput) getHostOID(oid string) gosnmp.SnmpPDU {
	row, col, ok := tableIndex(oid, s.hostsOID)
	if !ok {
		return noSuchInstance()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if row > len(s.hostOrder) {
		return noSuchInstance()
	}
	host := s.hostOrder[row-1]
	st := s.stats[host]

	switch col {
	case 1:
		return octetString(host)
	case 2:
		return counter(st.TotalAnalyses)
	case 3:
		return counter(st.SuccessfulAnalyses)
	case 4:
		return counter(st.FailedAnalyses)
	case 5:
		return gauge(st.LastDurationMs)
	case 6:
		return gauge(int64(st.AvgDurationMs))
	case 7:
		return counter(unixOrZero(st.LastSuccessTime))
	default:
		return noSuchInstance()
	}
}

// getRecentOID serves <base>.3.<row>.<col>
func (s *SNMPOutput) getRecentOID(oid string) gosnmp.SnmpPDU {
	row, col, ok := tableIndex(oid, s.recentOID)
	if !ok {
		return noSuchInstance()
	}

	records := s.cache.GetLast(s.cache.Count())
	if row > len(records) {
		return noSuchInstance()
	}
	record := records[row-1]
	report := record.Report
	if report == nil {
		report = &models.PerformanceReport{}
	}

	switch col {
	case 1:
		return octetString(record.URL)
	case 2:
		return counter(unixOrZero(record.Timestamp))
	case 3:
		if record.Success {
			return integer(1)
		}
		return integer(0)
	case 4:
		return gauge(record.DurationMs)
	case 5:
		return gauge(int64(report.LargestContentfulPaint))
	case 6:
		return gauge(report.TimeToFirstByte)
	case 7:
		return gauge(report.PageLoadTime)
	case 8:
		return gauge(report.TotalRequestSize)
	case 9:
		return integer(report.NumberOfRequests)
	default:
		return noSuchInstance()
	}
}

func integer(v int) gosnmp.SnmpPDU {
	return gosnmp.SnmpPDU{Type: gosnmp.Integer, Value: v}
}

func counter(v int64) gosnmp.SnmpPDU {
	if v < 0 {
		v = 0
	}
	return gosnmp.SnmpPDU{Type: gosnmp.Counter64, Value: uint64(v)}
}

func gauge(v int64) gosnmp.SnmpPDU {
	switch {
	case v < 0:
		v = 0
	case v > int64(^uint32(0)):
		v = int64(^uint32(0))
	}
	return gosnmp.SnmpPDU{Type: gosnmp.Gauge32, Value: uint32(v)}
}

func octetString(v string) gosnmp.SnmpPDU {
	return gosnmp.SnmpPDU{Type: gosnmp.OctetString, Value: v}
}

func noSuchInstance() gosnmp.SnmpPDU {
	return gosnmp.SnmpPDU{Type: gosnmp.NoSuchInstance}
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func normalizeOID(oid string) string {
	if !strings.HasPrefix(oid, ".") {
		return "." + oid
	}
	return oid
}

// oidCompare compares two OIDs numerically, arc by arc
func oidCompare(oid1, oid2 string) int {
	parts1 := strings.Split(strings.TrimPrefix(oid1, "."), ".")
	parts2 := strings.Split(strings.TrimPrefix(oid2, "."), ".")

	for i := 0; i < len(parts1) && i < len(parts2); i++ {
		n1, _ := strconv.Atoi(parts1[i])
		n2, _ := strconv.Atoi(parts2[i])

		if n1 < n2 {
			return -1
		} else if n1 > n2 {
			return 1
		}
	}

	switch {
	case len(parts1) < len(parts2):
		return -1
	case len(parts1) > len(parts2):
		return 1
	}
	return 0
}

// sortOIDs sorts OIDs in lexicographic order
func sortOIDs(oids []string) {
	slices.SortFunc(oids, oidCompare)
}

// Write records an analysis for polling
func (s *SNMPOutput) Write(record *models.AnalysisRecord) error {
	if s == nil {
		return nil
	}

	s.cache.Add(record)

	host := s.hosts.Label(record.HostLabel())

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stats[host]
	if !ok {
		st = &hostStats{}
		s.stats[host] = st
		s.hostOrder = append(s.hostOrder, host)
	}

	st.TotalAnalyses++
	if record.Success {
		st.SuccessfulAnalyses++
		st.LastSuccessTime = record.Timestamp
	} else {
		st.FailedAnalyses++
		st.LastFailureTime = record.Timestamp
	}

	st.LastDurationMs = record.DurationMs
	// Running mean over all analyses of the host
	st.AvgDurationMs += (float64(record.DurationMs) - st.AvgDurationMs) / float64(st.TotalAnalyses)

	return nil
}

// hostStatsFor returns a copy of the statistics for host, or nil
func (s *SNMPOutput) hostStatsFor(host string) *hostStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stats[host]
	if !ok {
		return nil
	}
	cp := *st
	return &cp
}

// Name returns the output module name
func (s *SNMPOutput) Name() string {
	return "snmp"
}

// Close shuts down the SNMP agent
func (s *SNMPOutput) Close() error {
	if s == nil {
		return nil
	}

	slog.Info("shutting down SNMP agent")

	close(s.done)
	if s.snmpConn != nil {
		// Unblock the pending read
		s.snmpConn.SetReadDeadline(time.Now())
	}
	s.wg.Wait()

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, host := range s.hostOrder {
		st := s.stats[host]
		slog.Info("SNMP agent final statistics",
			"host", host,
			"analyses", st.TotalAnalyses,
			"success", st.SuccessfulAnalyses,
			"failed", st.FailedAnalyses,
			"avg_duration_ms", st.AvgDurationMs)
	}

	return nil
}
