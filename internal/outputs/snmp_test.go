package outputs

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/config"
	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/metrics"
	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/models"
)

const testEnterpriseOID = ".1.3.6.1.4.1.99999"

func snmpConfig() *config.SNMPConfig {
	return &config.SNMPConfig{
		Enabled:       true,
		Port:          0,
		Community:     "test",
		ListenAddress: "127.0.0.1",
		EnterpriseOID: testEnterpriseOID,
		RecentSize:    3,
		MaxHosts:      10,
	}
}

func successRecord(host string, durationMs int64) *models.AnalysisRecord {
	return &models.AnalysisRecord{
		Timestamp:  time.Unix(1700000000, 0),
		URL:        "https://" + host + "/",
		Host:       host,
		Success:    true,
		DurationMs: durationMs,
		Report: &models.PerformanceReport{
			LargestContentfulPaint: 812.4,
			TimeToFirstByte:        95,
			PageLoadTime:           1400,
			TotalRequestSize:       640,
			NumberOfRequests:       27,
		},
	}
}

func failureRecord(host string) *models.AnalysisRecord {
	return &models.AnalysisRecord{
		Timestamp:  time.Unix(1700000100, 0),
		URL:        "https://" + host + "/",
		Host:       host,
		DurationMs: 60000,
		Error:      &models.ErrorInfo{ErrorType: "timeout", ErrorMessage: "navigation timed out"},
	}
}

func getRequest(pduType gosnmp.PDUType, community string, oids ...string) *gosnmp.SnmpPacket {
	vars := make([]gosnmp.SnmpPDU, 0, len(oids))
	for _, oid := range oids {
		vars = append(vars, gosnmp.SnmpPDU{Name: oid, Type: gosnmp.Null})
	}
	return &gosnmp.SnmpPacket{
		Version:   gosnmp.Version2c,
		Community: community,
		PDUType:   pduType,
		RequestID: 42,
		Variables: vars,
	}
}

func TestOIDCompare(t *testing.T) {
	tests := []struct {
		name     string
		oid1     string
		oid2     string
		expected int
	}{
		{"equal", ".1.3.6.1.4.1.99999.1.1.0", ".1.3.6.1.4.1.99999.1.1.0", 0},
		{"less", ".1.3.6.1.4.1.99999.1.1.0", ".1.3.6.1.4.1.99999.1.2.0", -1},
		{"greater", ".1.3.6.1.4.1.99999.2.1.0", ".1.3.6.1.4.1.99999.1.1.0", 1},
		{"numeric not lexical", ".1.3.6.1.4.1.99999.3.2.1", ".1.3.6.1.4.1.99999.3.10.1", -1},
		{"prefix sorts first", ".1.3.6.1.4.1.99999.1", ".1.3.6.1.4.1.99999.1.1", -1},
		{"longer sorts last", ".1.3.6.1.4.1.99999.1.1.0", ".1.3.6.1.4.1.99999.1.1", 1},
		{"no leading dot", "1.3.6.1.4.1.99999.1.1.0", "1.3.6.1.4.1.99999.1.2.0", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := oidCompare(tt.oid1, tt.oid2); result != tt.expected {
				t.Errorf("oidCompare(%s, %s) = %d, expected %d", tt.oid1, tt.oid2, result, tt.expected)
			}
		})
	}
}

func TestSortOIDs(t *testing.T) {
	oids := []string{
		".1.3.6.1.4.1.99999.3.10.1",
		".1.3.6.1.4.1.99999.1.1.0",
		".1.3.6.1.4.1.99999.3.2.1",
		".1.3.6.1.4.1.99999.1.1",
	}

	sortOIDs(oids)

	assert.Equal(t, []string{
		".1.3.6.1.4.1.99999.1.1",
		".1.3.6.1.4.1.99999.1.1.0",
		".1.3.6.1.4.1.99999.3.2.1",
		".1.3.6.1.4.1.99999.3.10.1",
	}, oids)
}

func TestSNMPOutputWrite(t *testing.T) {
	s := newSNMPOutput(snmpConfig())

	require.NoError(t, s.Write(successRecord("example.com", 1000)))
	require.NoError(t, s.Write(successRecord("example.com", 2000)))
	require.NoError(t, s.Write(failureRecord("example.com")))

	stats := s.hostStatsFor("example.com")
	require.NotNil(t, stats, "expected stats for example.com")

	if stats.TotalAnalyses != 3 {
		t.Errorf("Expected TotalAnalyses=3, got %d", stats.TotalAnalyses)
	}
	if stats.SuccessfulAnalyses != 2 {
		t.Errorf("Expected SuccessfulAnalyses=2, got %d", stats.SuccessfulAnalyses)
	}
	if stats.FailedAnalyses != 1 {
		t.Errorf("Expected FailedAnalyses=1, got %d", stats.FailedAnalyses)
	}
	if stats.LastDurationMs != 60000 {
		t.Errorf("Expected LastDurationMs=60000, got %d", stats.LastDurationMs)
	}
	assert.InDelta(t, 21000.0, stats.AvgDurationMs, 0.001)
	assert.Nil(t, s.hostStatsFor("missing.example.com"))
}

func TestSNMPOutputRecentRing(t *testing.T) {
	s := newSNMPOutput(snmpConfig())

	for _, host := range []string{"a.example.com", "b.example.com", "c.example.com", "d.example.com"} {
		require.NoError(t, s.Write(successRecord(host, 100)))
	}

	assert.Equal(t, 3, s.cache.Count())

	// Oldest surviving row is b
	pdu := s.getOIDValue(testEnterpriseOID + ".3.1.1")
	assert.Equal(t, gosnmp.OctetString, pdu.Type)
	assert.Equal(t, "https://b.example.com/", pdu.Value)

	pdu = s.getOIDValue(testEnterpriseOID + ".3.4.1")
	assert.Equal(t, gosnmp.NoSuchInstance, pdu.Type)
}

func TestSNMPOutputGet(t *testing.T) {
	s := newSNMPOutput(snmpConfig())
	require.NoError(t, s.Write(successRecord("example.com", 1500)))
	require.NoError(t, s.Write(failureRecord("slow.example.com")))

	resp := s.handlePacket(getRequest(gosnmp.GetRequest, "test",
		testEnterpriseOID+".1.4.0",
		testEnterpriseOID+".1.6.0",
		testEnterpriseOID+".2.2.1",
		testEnterpriseOID+".3.1.9",
		testEnterpriseOID+".3.2.3",
		testEnterpriseOID+".9.9.9",
	))
	require.NotNil(t, resp)
	assert.Equal(t, gosnmp.GetResponse, resp.PDUType)
	assert.Equal(t, uint32(42), resp.RequestID)
	require.Len(t, resp.Variables, 6)

	assert.Equal(t, uint64(2), resp.Variables[0].Value)
	assert.Equal(t, uint64(1), resp.Variables[1].Value)
	assert.Equal(t, "slow.example.com", resp.Variables[2].Value)
	assert.Equal(t, 27, resp.Variables[3].Value)
	assert.Equal(t, 0, resp.Variables[4].Value)
	assert.Equal(t, gosnmp.NoSuchInstance, resp.Variables[5].Type)
}

func TestSNMPOutputWrongCommunity(t *testing.T) {
	s := newSNMPOutput(snmpConfig())
	assert.Nil(t, s.handlePacket(getRequest(gosnmp.GetRequest, "public", testEnterpriseOID+".1.1.0")))
}

func TestSNMPOutputWalk(t *testing.T) {
	s := newSNMPOutput(snmpConfig())
	require.NoError(t, s.Write(successRecord("example.com", 1500)))

	resp := s.handlePacket(getRequest(gosnmp.GetNextRequest, "test", testEnterpriseOID))
	require.NotNil(t, resp)
	require.Len(t, resp.Variables, 1)
	assert.Equal(t, testEnterpriseOID+".1.1.0", resp.Variables[0].Name)

	// 6 scalars + 7 host columns + 9 recent columns
	bulk := getRequest(gosnmp.GetBulkRequest, "test", testEnterpriseOID)
	bulk.MaxRepetitions = 100
	resp = s.handlePacket(bulk)
	require.NotNil(t, resp)
	assert.Len(t, resp.Variables, 6+hostColumns+recentColumns)

	last := resp.Variables[len(resp.Variables)-1]
	resp = s.handlePacket(getRequest(gosnmp.GetNextRequest, "test", last.Name))
	assert.Equal(t, gosnmp.EndOfMibView, resp.Variables[0].Type)
}

func TestSNMPOutputUDP(t *testing.T) {
	s, err := NewSNMPOutput(snmpConfig())
	require.NoError(t, err)
	require.NotNil(t, s)
	defer s.Close()

	require.NoError(t, s.Write(successRecord("example.com", 1500)))

	port := s.snmpConn.LocalAddr().(*net.UDPAddr).Port
	client := &gosnmp.GoSNMP{
		Target:    "127.0.0.1",
		Port:      uint16(port),
		Community: "test",
		Version:   gosnmp.Version2c,
		Timeout:   2 * time.Second,
		Retries:   1,
	}
	require.NoError(t, client.Connect())
	defer client.Conn.Close()

	result, err := client.Get([]string{testEnterpriseOID + ".1.4.0", testEnterpriseOID + ".2.1.1"})
	require.NoError(t, err)
	require.Len(t, result.Variables, 2)

	assert.Equal(t, uint64(1), gosnmp.ToBigInt(result.Variables[0].Value).Uint64())
	assert.Equal(t, "example.com", string(result.Variables[1].Value.([]byte)))
}

func TestNewSNMPOutput_Disabled(t *testing.T) {
	s, err := NewSNMPOutput(&config.SNMPConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.NoError(t, s.Write(&models.AnalysisRecord{}))
	assert.NoError(t, s.Close())
}

func TestSNMPOutputHostTableBounded(t *testing.T) {
	s := newSNMPOutput(snmpConfig())

	for i := 0; i < 500; i++ {
		require.NoError(t, s.Write(successRecord(fmt.Sprintf("site-%d.example.com", i), 100)))
	}
	for i := 0; i < 500; i++ {
		require.NoError(t, s.Write(&models.AnalysisRecord{
			URL:   fmt.Sprintf("not a url %d", i),
			Error: &models.ErrorInfo{ErrorType: "navigation"},
		}))
	}

	s.mu.RLock()
	hosts := len(s.stats)
	rows := len(s.hostOrder)
	s.mu.RUnlock()

	assert.Equal(t, 11, hosts, "ten hosts plus the overflow row")
	assert.Equal(t, hosts, rows)

	other := s.hostStatsFor(metrics.HostOverflow)
	require.NotNil(t, other)
	assert.Equal(t, int64(990), other.TotalAnalyses)
	assert.Equal(t, int64(500), other.FailedAnalyses)
	assert.Nil(t, s.hostStatsFor("not a url 1"))
}
