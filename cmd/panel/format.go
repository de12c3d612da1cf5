package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgnsrekt/phx_devtools/internal/types"
)

const maxSummary = 120

func formatMessage(m types.Message, loc *time.Location, verbose bool) string {
	arrow := "->"
	if m.Direction == types.Inbound {
		arrow = "<-"
	}
	tag := ""
	if m.IsPhoenix {
		tag = " [phx]"
	}
	if m.TabID != 0 {
		tag += fmt.Sprintf(" [tab %d]", m.TabID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %-24s %6dB%s  %s\n",
		time.UnixMilli(m.Timestamp).In(loc).Format("15:04:05.000"),
		arrow, m.Method, m.Size, tag, summarize(m.Data))
	if verbose {
		data := m.ParsedData
		if data == "" {
			data = m.Data
		}
		var pretty bytes.Buffer
		if json.Indent(&pretty, []byte(data), "    ", "  ") == nil {
			b.WriteString("    ")
			b.Write(pretty.Bytes())
			b.WriteByte('\n')
		} else {
			b.WriteString("    " + data + "\n")
		}
	}
	return b.String()
}

func summarize(data string) string {
	s := strings.Join(strings.Fields(data), " ")
	if r := []rune(s); len(r) > maxSummary {
		return string(r[:maxSummary]) + "..."
	}
	return s
}

func formatConnection(c types.Connection) string {
	var b strings.Builder
	fmt.Fprintf(&b, "tab %d  %s  phx %s\n", c.TabID, c.URL, orDash(c.PhxVersion))
	channels := types.CloneConnections([]types.Connection{c})[0].Channels
	sort.Slice(channels, func(i, j int) bool { return channels[i].Topic < channels[j].Topic })
	for _, ch := range channels {
		fmt.Fprintf(&b, "  %-40s %s\n", ch.Topic, ch.State)
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
