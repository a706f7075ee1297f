//go:build !windows && !darwin

package alive

import (
	"bufio"
	"encoding/binary"
	"net"
	"os"
	"strconv"
	"strings"
)

// GatewayIP 返回默认网关地址
// 解析 /proc/net/route: 目的为 00000000 的表项即默认路由
func GatewayIP() string {
	f, err := os.Open("/proc/net/route")
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Scan() // 表头
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		// Iface / Destination / Gateway / Flags ...
		if len(fields) < 3 || fields[1] != "00000000" {
			continue
		}
		gw, err := strconv.ParseUint(fields[2], 16, 32)
		if err != nil {
			continue
		}
		// /proc 里的地址是小端序十六进制
		ip := make(net.IP, 4)
		binary.LittleEndian.PutUint32(ip, uint32(gw))
		return ip.String()
	}
	return ""
}
