package netlist

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/errgo.v1"

	"github.com/edp1096/toy-powerflow/pkg/device"
	"github.com/edp1096/toy-powerflow/pkg/network"
	"github.com/edp1096/toy-powerflow/pkg/powerflow"
)

var ErrSyntax = errgo.New("netlist syntax error")

type NetlistData struct {
	Title    string
	Elements []Element        // Network elements
	Buses    map[string]int   // Bus name and order of appearance
	BaseMVA  float64          // .base
	Slack    []string         // .slack
	Options  []OptionOverride // .pf key=value
}

type Element struct {
	Type   string            // L, T, G, D, Y, H
	Name   string            // Part name
	Nodes  []string          // Bus names
	Params map[string]string // key=value parameters
	Flags  map[string]bool   // Bare words such as "reg"
}

type OptionOverride struct {
	Key   string
	Value string
}

var unitMap = map[string]float64{
	"G":   1e9,  // giga
	"meg": 1e6,  // mega
	"K":   1e3,  // kilo
	"k":   1e3,  // kilo
	"m":   1e-3, // milli
	"u":   1e-6, // micro
}

var (
	spaces  = regexp.MustCompile(`\s+`)
	valueRe = regexp.MustCompile(`^([-+]?\d*\.?\d+(?:[eE][-+]?\d+)?)(meg|[GKkmu])?$`)
)

// Parse reads a case file. The first line is the title.
func Parse(input string) (*NetlistData, error) {
	scanner := bufio.NewScanner(strings.NewReader(input))
	netlistData := &NetlistData{
		Buses: make(map[string]int),
	}

	// Title or comment
	if scanner.Scan() {
		netlistData.Title = strings.TrimPrefix(scanner.Text(), "*")
		netlistData.Title = strings.TrimSpace(netlistData.Title)
	}

	var currentLine string
	lineNo := 1
	startLine := 0
	flush := func() error {
		if currentLine == "" {
			return nil
		}
		err := parseLine(netlistData, currentLine)
		currentLine = ""
		if err != nil {
			return errgo.WithCausef(err, ErrSyntax, "line %d", startLine)
		}
		return nil
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		// Inline comment
		if idx := strings.IndexAny(line, "*;"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if len(line) == 0 {
			continue
		}

		// 라인 이어짐 처리
		if strings.HasPrefix(line, "+") {
			if currentLine == "" {
				return nil, errgo.WithCausef(nil, ErrSyntax, "line %d: continuation without a preceding line", lineNo)
			}
			currentLine += " " + strings.TrimSpace(strings.TrimPrefix(line, "+"))
			continue
		}

		if err := flush(); err != nil {
			return nil, err
		}
		if strings.EqualFold(line, ".end") {
			break
		}
		currentLine = line
		startLine = lineNo
	}
	if err := scanner.Err(); err != nil {
		return nil, errgo.Mask(err)
	}
	if err := flush(); err != nil {
		return nil, err
	}

	return netlistData, nil
}

func parseLine(netlistData *NetlistData, line string) error {
	line = spaces.ReplaceAllString(line, " ")

	if strings.HasPrefix(line, ".") {
		return parseDotOperator(netlistData, line)
	}

	element, err := parseElement(line)
	if err != nil {
		return err
	}

	netlistData.Elements = append(netlistData.Elements, *element)
	for _, node := range element.Nodes {
		if _, exists := netlistData.Buses[node]; !exists {
			netlistData.Buses[node] = len(netlistData.Buses)
		}
	}
	return nil
}

// Parse .base, .slack, .pf
func parseDotOperator(netlistData *NetlistData, line string) error {
	fields := strings.Fields(line)

	switch strings.ToLower(fields[0]) {
	case ".base":
		if len(fields) != 2 {
			return fmt.Errorf(".base needs exactly one value")
		}
		base, err := ParseValue(fields[1])
		if err != nil {
			return fmt.Errorf("invalid base: %v", err)
		}
		netlistData.BaseMVA = base

	case ".slack":
		if len(fields) < 2 {
			return fmt.Errorf(".slack needs at least one bus")
		}
		netlistData.Slack = append(netlistData.Slack, fields[1:]...)

	case ".pf":
		for _, field := range fields[1:] {
			key, value, ok := strings.Cut(field, "=")
			if !ok {
				// Bare word switches a boolean option on
				key, value = field, "true"
			}
			netlistData.Options = append(netlistData.Options, OptionOverride{Key: strings.ToLower(key), Value: value})
		}

	default:
		return fmt.Errorf("unsupported command: %s", fields[0])
	}

	return nil
}

var nodeCount = map[string]int{
	"L": 2,
	"T": 2,
	"H": 2,
	"G": 1,
	"D": 1,
	"Y": 1,
}

// Parse network element
func parseElement(line string) (*Element, error) {
	fields := strings.Fields(line)

	elem := &Element{
		Name:   fields[0],
		Type:   strings.ToUpper(string(fields[0][0])),
		Params: make(map[string]string),
		Flags:  make(map[string]bool),
	}

	n, ok := nodeCount[elem.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported element type: %s", elem.Name)
	}
	if len(fields) < 1+n {
		return nil, fmt.Errorf("element %s needs %d buses", elem.Name, n)
	}
	elem.Nodes = fields[1 : 1+n]

	for _, field := range fields[1+n:] {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			elem.Flags[strings.ToLower(field)] = true
			continue
		}
		elem.Params[strings.ToLower(key)] = value
	}
	return elem, nil
}

// ParseValue - Parse value and factor. 1k -> 1000
func ParseValue(val string) (float64, error) {
	matches := valueRe.FindStringSubmatch(strings.TrimSpace(val))
	if matches == nil {
		return 0, fmt.Errorf("invalid value format: %s", val)
	}

	num, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, err
	}

	// factor
	if matches[2] != "" {
		num *= unitMap[matches[2]]
	}
	return num, nil
}

// params reads the numeric parameters of an element into their targets,
// leaving absent ones untouched.
func (e Element) params(targets map[string]*float64) error {
	for key, value := range e.Params {
		target, ok := targets[key]
		if !ok {
			return fmt.Errorf("%s: unknown parameter %q", e.Name, key)
		}
		v, err := ParseValue(value)
		if err != nil {
			return fmt.Errorf("%s: parameter %s: %v", e.Name, key, err)
		}
		*target = v
	}
	return nil
}

func (e Element) flags(allowed ...string) error {
	for flag := range e.Flags {
		found := false
		for _, a := range allowed {
			if flag == a {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%s: unknown flag %q", e.Name, flag)
		}
	}
	return nil
}

func CreateDevice(elem Element) (device.Device, error) {
	switch elem.Type {
	case "L":
		var r, x, b, rate float64
		if err := elem.params(map[string]*float64{"r": &r, "x": &x, "b": &b, "rate": &rate}); err != nil {
			return nil, err
		}
		if err := elem.flags(); err != nil {
			return nil, err
		}
		return device.NewLine(elem.Name, elem.Nodes, r, x, b, rate), nil

	case "T":
		t := device.NewTransformer(elem.Name, elem.Nodes, 0, 0)
		var tap, minTap, maxTap, inc float64
		if err := elem.params(map[string]*float64{
			"r": &t.R, "x": &t.X, "b": &t.B, "rate": &t.Rate,
			"tap": &tap, "mintap": &minTap, "maxtap": &maxTap,
			"inc": &inc, "incup": &t.TapIncUp, "incdown": &t.TapIncDown,
			"angle": &t.TapAngle, "vset": &t.Vset,
		}); err != nil {
			return nil, err
		}
		if err := elem.flags("reg", "continuous"); err != nil {
			return nil, err
		}
		if _, ok := elem.Params["inc"]; ok {
			t.TapIncUp, t.TapIncDown = inc, inc
		}
		t.TapPosition, t.MinTap, t.MaxTap = int(tap), int(minTap), int(maxTap)
		t.Regulated = elem.Flags["reg"]
		t.Continuous = elem.Flags["continuous"]
		return t, nil

	case "G":
		g := device.NewGenerator(elem.Name, elem.Nodes, 0, 1.0)
		if err := elem.params(map[string]*float64{
			"p": &g.P, "q": &g.Q, "vset": &g.Vset,
			"qmin": &g.Qmin, "qmax": &g.Qmax, "snom": &g.Snom,
		}); err != nil {
			return nil, err
		}
		if err := elem.flags("novc"); err != nil {
			return nil, err
		}
		g.VoltageControl = !elem.Flags["novc"]
		return g, nil

	case "D":
		l := device.NewLoad(elem.Name, elem.Nodes, 0, 0)
		if err := elem.params(map[string]*float64{
			"p": &l.P, "q": &l.Q, "ir": &l.Ir, "ii": &l.Ii, "g": &l.G, "b": &l.B,
		}); err != nil {
			return nil, err
		}
		if err := elem.flags(); err != nil {
			return nil, err
		}
		return l, nil

	case "Y":
		s := device.NewShunt(elem.Name, elem.Nodes, 0, 0)
		if err := elem.params(map[string]*float64{"g": &s.G, "b": &s.B}); err != nil {
			return nil, err
		}
		if err := elem.flags(); err != nil {
			return nil, err
		}
		return s, nil

	case "H":
		h := device.NewHvdc(elem.Name, elem.Nodes, 0)
		if err := elem.params(map[string]*float64{"p": &h.Pset, "loss": &h.LossFactor, "rate": &h.Rate}); err != nil {
			return nil, err
		}
		if err := elem.flags(); err != nil {
			return nil, err
		}
		return h, nil
	}
	return nil, fmt.Errorf("unsupported device type: %s", elem.Type)
}

// Build creates the network described by the netlist.
func (nd *NetlistData) Build() (*network.Network, error) {
	net := network.New(nd.Title)
	if nd.BaseMVA > 0 {
		net.BaseMVA = nd.BaseMVA
	}
	for _, elem := range nd.Elements {
		dev, err := CreateDevice(elem)
		if err != nil {
			return nil, errgo.WithCausef(err, ErrSyntax, "")
		}
		net.AddDevice(dev)
	}
	if len(nd.Slack) == 0 {
		return nil, errgo.WithCausef(nil, network.ErrInvalidModel, "no slack bus given")
	}
	for _, name := range nd.Slack {
		if err := net.SetSlack(name); err != nil {
			return nil, errgo.Mask(err, errgo.Is(network.ErrInvalidModel))
		}
	}
	return net, nil
}

// ApplyOptions applies the .pf overrides in order.
func (nd *NetlistData) ApplyOptions(opts *powerflow.Options) error {
	for _, o := range nd.Options {
		if err := opts.Set(o.Key, o.Value); err != nil {
			return errgo.Mask(err, errgo.Is(powerflow.ErrInvalidOptions))
		}
	}
	return nil
}
