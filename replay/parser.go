package replay

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"

	"market-sim-go/market"
)

// State 解析器状态。
type State int

const (
	Idle State = iota
	InBids
	InAsks
	ExpectLength
	ExpectTime
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case InBids:
		return "InBids"
	case InAsks:
		return "InAsks"
	case ExpectLength:
		return "ExpectLength"
	case ExpectTime:
		return "ExpectTime"
	default:
		return "Unknown"
	}
}

// 控制行
const (
	lineIncoming      = "INCOMING"
	lineAfterClearing = "AFTER CLEARING"
	lineBids          = "BIDS"
	lineAsks          = "ASKS"
	lineTime          = "==="

	entrySep = " \t "
	// 价格 token 形如 "Some(99.50),"
	pricePrefixLen = 5
	priceSuffixLen = 2
)

type side int

const (
	sideNone side = iota
	sideBids
	sideAsks
)

// Parser 是按行驱动的订单簿日志状态机。
//
// INCOMING 之前累积的记录（priming record）被丢弃；输入结束时最后一条记录也会输出。
// 同一记录内重复出现的 BIDS/ASKS 段落以最新一次为准。
type Parser struct {
	state   State
	section side // InBids/InAsks/ExpectLength 所属的一侧
	declared int
	entries  []market.Level

	cur     market.Snapshot
	started bool // 是否已见过第一个 INCOMING
	line    int
	closed  bool
	emit    func(market.Snapshot) error
}

// NewParser 创建解析器；每条完成的快照都会交给 emit，emit 返回错误时解析中止。
func NewParser(emit func(market.Snapshot) error) *Parser {
	return &Parser{emit: emit}
}

// State 返回当前状态。
func (p *Parser) State() State { return p.state }

// Line 返回已处理的行数。
func (p *Parser) Line() int { return p.line }

// Feed 处理一行输入（允许带行尾换行符）。
func (p *Parser) Feed(raw string) error {
	if p.closed {
		return ErrParserClosed
	}
	p.line++
	line := strings.TrimRight(raw, "\r\n")

	switch p.state {
	case ExpectLength:
		return p.readLength(line)
	case ExpectTime:
		return p.readTime(line)
	}

	switch line {
	case lineIncoming:
		if err := p.closeSection(line); err != nil {
			return err
		}
		if err := p.flush(); err != nil {
			return err
		}
		p.started = true
		p.cur = market.Snapshot{Bids: []market.Level{}, Asks: []market.Level{}}
		p.state = Idle
		return nil
	case lineAfterClearing:
		return nil
	case lineBids, lineAsks:
		if err := p.closeSection(line); err != nil {
			return err
		}
		p.section = sideBids
		if line == lineAsks {
			p.section = sideAsks
		}
		p.state = ExpectLength
		return nil
	case lineTime:
		if err := p.closeSection(line); err != nil {
			return err
		}
		p.state = ExpectTime
		return nil
	case "":
		switch p.state {
		case InAsks:
			return p.closeSection(line)
		case InBids:
			return p.fail(line, "blank line inside bids section")
		}
		return nil
	}

	switch p.state {
	case InBids, InAsks:
		lvl, err := parseEntry(line)
		if err != nil {
			return p.fail(line, err.Error())
		}
		p.entries = append(p.entries, lvl)
	}
	return nil
}

// Close 结束输入：校验未关闭的段落并输出最后一条记录。
func (p *Parser) Close() error {
	if p.closed {
		return nil
	}
	switch p.state {
	case ExpectLength:
		return p.fail("", "unexpected end of input: missing section length")
	case ExpectTime:
		return p.fail("", "unexpected end of input: missing timestamp")
	}
	if err := p.closeSection(""); err != nil {
		return err
	}
	p.closed = true
	return p.flush()
}

func (p *Parser) readLength(line string) error {
	fields := strings.Split(strings.TrimSpace(line), " ")
	if len(fields) < 2 {
		return p.fail(line, "section length: expected two tokens")
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil || n < 0 {
		return p.fail(line, "section length: not a non-negative integer")
	}
	p.declared = n
	p.entries = make([]market.Level, 0, n)
	if p.section == sideAsks {
		p.state = InAsks
	} else {
		p.state = InBids
	}
	return nil
}

func (p *Parser) readTime(line string) error {
	ts, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
	if err != nil {
		return p.fail(line, "timestamp: not a number")
	}
	p.cur.Time = ts
	p.state = Idle
	return nil
}

// closeSection 结束当前 InBids/InAsks 段落并写回记录。
func (p *Parser) closeSection(line string) error {
	if p.state != InBids && p.state != InAsks {
		return nil
	}
	if len(p.entries) != p.declared {
		return p.fail(line, "section has "+strconv.Itoa(len(p.entries))+" entries, declared "+strconv.Itoa(p.declared))
	}
	if p.state == InBids {
		p.cur.Bids, p.cur.BidLength = p.entries, p.declared
	} else {
		p.cur.Asks, p.cur.AskLength = p.entries, p.declared
	}
	p.entries = nil
	p.section = sideNone
	p.state = Idle
	return nil
}

func (p *Parser) flush() error {
	if !p.started {
		return nil
	}
	snap := p.cur
	p.cur = market.Snapshot{}
	if p.emit == nil {
		return nil
	}
	return p.emit(snap)
}

func (p *Parser) fail(text, reason string) error {
	p.closed = true
	return &FormatError{Line: p.line, Text: text, Reason: reason}
}

type entryError string

func (e entryError) Error() string { return string(e) }

func parseEntry(line string) (market.Level, error) {
	parts := strings.Split(strings.TrimRight(line, " \t"), entrySep)
	if len(parts) != 2 {
		return market.Level{}, entryError("entry: expected \"<price> \\t <qty>\"")
	}
	tok := parts[0]
	if len(tok) <= pricePrefixLen+priceSuffixLen {
		return market.Level{}, entryError("entry: price token too short")
	}
	price, err := strconv.ParseFloat(tok[pricePrefixLen:len(tok)-priceSuffixLen], 64)
	if err != nil || math.IsNaN(price) || math.IsInf(price, 0) {
		return market.Level{}, entryError("entry: price is not a number")
	}
	qty, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return market.Level{}, entryError("entry: quantity is not an integer")
	}
	if price <= 0 || qty <= 0 {
		return market.Level{}, entryError("entry: price and quantity must be positive")
	}
	return market.Level{Price: price, Quantity: qty}, nil
}

// Scan 逐行读取 r 并把每条快照交给 fn。
func Scan(r io.Reader, fn func(market.Snapshot) error) error {
	p := NewParser(fn)
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			if ferr := p.Feed(line); ferr != nil {
				return ferr
			}
		}
		if err == io.EOF {
			return p.Close()
		}
		if err != nil {
			return err
		}
	}
}

// ParseAll 解析完整输入；出错时仍返回出错前已输出的快照。
func ParseAll(r io.Reader) ([]market.Snapshot, error) {
	var out []market.Snapshot
	err := Scan(r, func(s market.Snapshot) error {
		out = append(out, s)
		return nil
	})
	return out, err
}
