package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"reformkit/internal/protocol"
	"reformkit/internal/sim/geo"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/state"
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

func commandCmd(args []string) {
	fs := flag.NewFlagSet("command", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	origin := fs.String("origin", "", "lat,lon in degrees (optional)")
	radius := fs.Float64("radius", 200, "planet radius used to place -origin")
	regionsPath := fs.String("regions", "", "file with $-delimited region records (SET_REGIONS)")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: admin command [-url URL] [-origin LAT,LON] [-regions FILE] DEMOLISH|REFORM|BURY_VEINS|RAISE_VEINS|CANCEL|SET_REGIONS")
		os.Exit(2)
	}
	cmd := protocol.CommandMsg{
		Type:            protocol.TypeCommand,
		ProtocolVersion: protocol.Version,
		ReqID:           fmt.Sprintf("admin-%d", time.Now().UnixNano()),
		Op:              strings.ToUpper(strings.TrimSpace(fs.Arg(0))),
	}
	if strings.TrimSpace(*origin) != "" {
		lat, lon, err := parseLatLon(*origin)
		if err != nil {
			fmt.Fprintln(os.Stderr, "bad -origin:", err)
			os.Exit(2)
		}
		p := geo.PointAt(lat, lon, *radius)
		cmd.Origin = [3]float64{p.X, p.Y, p.Z}
	}
	if *regionsPath != "" {
		b, err := os.ReadFile(*regionsPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read regions:", err)
			os.Exit(1)
		}
		cmd.Regions = strings.TrimSpace(string(b))
	}

	body, _ := json.Marshal(cmd)
	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/command"
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Post(u, "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))

	var ack protocol.AckMsg
	if resp.StatusCode/100 != 2 || json.Unmarshal(b, &ack) != nil || !ack.Accepted {
		os.Exit(1)
	}
}

func parseLatLon(s string) (lat, lon float64, err error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected lat,lon")
	}
	if lat, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64); err != nil {
		return 0, 0, err
	}
	if lon, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64); err != nil {
		return 0, 0, err
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, fmt.Errorf("out of range: %g,%g", lat, lon)
	}
	return lat, lon, nil
}
