package replay

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-sim-go/market"
)

const twoRecordLog = "BIDS\nlen: 1\nSome(50.00), \t 9\n===\n0.5\n" +
	"INCOMING\nAFTER CLEARING\n" +
	"BIDS\nlen: 2\nSome(99.50), \t 3\nSome(98.25), \t 1\n" +
	"ASKS\nlen: 1\nSome(101.00), \t 2\n\n" +
	"===\n1.25\n" +
	"INCOMING\n" +
	"BIDS\nlen: 0\n" +
	"ASKS\nlen: 2\nSome(100.50), \t 4\nSome(102.00), \t 5\n\n" +
	"===\n2.5\n"

func TestParseAllTwoRecords(t *testing.T) {
	snaps, err := ParseAll(strings.NewReader(twoRecordLog))
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	assert.Equal(t, market.Snapshot{
		Time:      1.25,
		Bids:      []market.Level{{Price: 99.5, Quantity: 3}, {Price: 98.25, Quantity: 1}},
		Asks:      []market.Level{{Price: 101, Quantity: 2}},
		BidLength: 2,
		AskLength: 1,
	}, snaps[0])
	assert.Equal(t, market.Snapshot{
		Time:      2.5,
		Bids:      []market.Level{},
		Asks:      []market.Level{{Price: 100.5, Quantity: 4}, {Price: 102, Quantity: 5}},
		AskLength: 2,
	}, snaps[1])
}

func TestParserStates(t *testing.T) {
	p := NewParser(nil)
	steps := []struct {
		line  string
		state State
	}{
		{"INCOMING\n", Idle},
		{"BIDS\n", ExpectLength},
		{"len: 1\n", InBids},
		{"Some(99.00), \t 1\n", InBids},
		{"ASKS\n", ExpectLength},
		{"len: 0\n", InAsks},
		{"\n", Idle},
		{"===\n", ExpectTime},
		{"3.0\n", Idle},
	}
	for _, s := range steps {
		require.NoError(t, p.Feed(s.line), s.line)
		assert.Equal(t, s.state, p.State(), s.line)
	}
	assert.Equal(t, 9, p.Line())
}

func TestParserSectionReplacedWithinRecord(t *testing.T) {
	log := "INCOMING\nBIDS\nlen: 1\nSome(90.00), \t 1\nAFTER CLEARING\nBIDS\nlen: 1\nSome(91.00), \t 2\n===\n1\n"
	snaps, err := ParseAll(strings.NewReader(log))
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, []market.Level{{Price: 91, Quantity: 2}}, snaps[0].Bids)
}

func TestParserFormatErrors(t *testing.T) {
	testCases := []struct {
		name   string
		line   string
		reason string
	}{
		{"missing quantity", "Some(99.00),", "expected"},
		{"non numeric price", "Some(abc.d), \t 1", "price is not a number"},
		{"non numeric quantity", "Some(99.00), \t x", "quantity is not an integer"},
		{"short token", "S(), \t 1", "too short"},
		{"zero quantity", "Some(99.00), \t 0", "positive"},
		{"nan price", "Some(NaN), \t 2", "price is not a number"},
		{"infinite price", "Some(+Inf), \t 2", "price is not a number"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			log := "INCOMING\nBIDS\nlen: 1\nSome(1.00), \t 1\n===\n1\nINCOMING\nASKS\nlen: 1\n" + tc.line + "\n\n===\n2\n"
			snaps, err := ParseAll(strings.NewReader(log))
			require.Error(t, err)

			var fe *FormatError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, 10, fe.Line)
			assert.Contains(t, fe.Reason, tc.reason)
			// 出错前已完成的记录保留
			require.Len(t, snaps, 1)
			assert.Equal(t, 1.0, snaps[0].Time)
		})
	}
}

func TestParserLengthMismatch(t *testing.T) {
	log := "INCOMING\nBIDS\nlen: 2\nSome(99.00), \t 1\nASKS\n"
	_, err := ParseAll(strings.NewReader(log))
	require.Error(t, err)
	assert.True(t, IsFormat(err))
	assert.Contains(t, err.Error(), "declared 2")
}

func TestParserBlankLineInBids(t *testing.T) {
	p := NewParser(nil)
	for _, l := range []string{"INCOMING", "BIDS", "len: 0"} {
		require.NoError(t, p.Feed(l))
	}
	err := p.Feed("")
	assert.True(t, IsFormat(err))
	assert.ErrorIs(t, p.Feed("INCOMING"), ErrParserClosed)
}

func TestParserTruncatedInput(t *testing.T) {
	for _, log := range []string{"INCOMING\nBIDS\n", "INCOMING\n===\n"} {
		_, err := ParseAll(strings.NewReader(log))
		assert.True(t, IsFormat(err), log)
	}
}

func TestParserFinalRecordWithoutNewline(t *testing.T) {
	snaps, err := ParseAll(strings.NewReader("INCOMING\n===\n7.5"))
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, 7.5, snaps[0].Time)
}

func TestScanStopsOnCallbackError(t *testing.T) {
	stop := errors.New("stop")
	n := 0
	err := Scan(strings.NewReader(twoRecordLog), func(market.Snapshot) error {
		n++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, n)
}
