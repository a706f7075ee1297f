//go:build windows || darwin

package alive

// GatewayIP 非 Linux 平台不做网关检测
func GatewayIP() string {
	return ""
}
