package app

import (
	"fmt"
	"io"
	"sort"

	"github.com/dokzlo13/neewerctl/internal/light"
	"github.com/dokzlo13/neewerctl/internal/session"
)

// printDeviceTable renders the --list output, strongest signal first.
func printDeviceTable(w io.Writer, lights []*light.Descriptor) {
	if len(lights) == 0 {
		fmt.Fprintln(w, "No matching Neewer lights found.")
		return
	}

	sorted := append([]*light.Descriptor(nil), lights...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].RSSI > sorted[j].RSSI })

	fmt.Fprintf(w, "Found %d light(s):\n", len(sorted))
	fmt.Fprintln(w, "ID  RSSI  ADDRESS              NAME               TYPE               PROTO     CCT_ONLY")
	fmt.Fprintln(w, "--  ----  -------------------  -----------------  -----------------  --------  --------")
	for idx, l := range sorted {
		lightType := l.RealName
		if lightType == "" {
			lightType = l.Name
		}
		fmt.Fprintf(w, "%2d  %4d  %-19s  %-17s  %-17s  %-8s  %-8t\n",
			idx+1, l.RSSI, l.MAC, truncate(l.Name, 17), truncate(lightType, 17),
			l.Variant, l.CCTOnly)
	}
}

// printStatusTable renders the --status output.
func printStatusTable(w io.Writer, lights []*light.Descriptor, results []session.Result) {
	byMAC := make(map[string]session.Result, len(results))
	for _, res := range results {
		byMAC[res.MAC] = res
	}

	fmt.Fprintln(w, "ADDRESS              NAME               POWER  CHANNEL")
	fmt.Fprintln(w, "-------------------  -----------------  -----  -------")
	for _, l := range lights {
		power := "UNKNOWN"
		channel := "---"
		if res, ok := byMAC[l.MAC]; ok && res.Outcome == session.OutcomeSuccess {
			power = string(res.Status.Power)
			if res.Status.Channel >= 0 {
				channel = fmt.Sprintf("%d", res.Status.Channel)
			}
		}
		fmt.Fprintf(w, "%-19s  %-17s  %-5s  %-7s\n",
			l.MAC, truncate(l.DisplayName(), 17), power, channel)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
