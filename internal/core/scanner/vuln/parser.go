/**
 * NSE 输出解析
 * @description: 从 nmap --script vuln 文本输出里提取确认的漏洞。
 *               NSE 块形如:
 *               | smb-vuln-ms17-010:
 *               |   VULNERABLE:
 *               |     State: VULNERABLE
 *               |     IDs:  CVE:CVE-2017-0143
 */
package vuln

import (
	"regexp"
	"sort"
	"strings"

	"raider/internal/core/model"
)

var (
	// 脚本头要求名字里带连字符，避免把 State:/IDs: 这类缩进属性行当成脚本名
	reScriptHeader = regexp.MustCompile(`^\|\s+([\w][\w-]*-[\w][\w-]*)\s*:`)
	rePortLine     = regexp.MustCompile(`^(\d+/\w+)\s+\w+\s+(\S+)`)
	rePortPrefix   = regexp.MustCompile(`^\d+/\w+\s+\w+`)
	reState        = regexp.MustCompile(`State:\s+((?:LIKELY\s+)?VULNERABLE)`)
	reCVE          = regexp.MustCompile(`CVE-\d{4}-\d+`)
	reRisk         = regexp.MustCompile(`^Risk factor:\s*(.+)`)
	reDisclosure   = regexp.MustCompile(`^Disclosure date:\s*(.+)`)
	reBlockPrefix  = regexp.MustCompile(`^\|[_ ]?\s*`)
)

// ParseLabels 提取确认漏洞的短标签集合 (排序去重)
// 有 CVE 记 CVE，否则记脚本名
func ParseLabels(scanResult string) []string {
	labels := make(map[string]struct{})

	var currentScript string
	var currentCVEs []string
	isVulnerable := false

	saveBlock := func() {
		if currentScript == "" || !isVulnerable {
			return
		}
		if len(currentCVEs) > 0 {
			for _, cve := range currentCVEs {
				labels[cve] = struct{}{}
			}
		} else {
			labels[currentScript] = struct{}{}
		}
	}

	for _, line := range strings.Split(scanResult, "\n") {
		if m := reScriptHeader.FindStringSubmatch(line); m != nil {
			saveBlock()
			currentScript = m[1]
			currentCVEs = nil
			isVulnerable = false
		}
		if reState.MatchString(line) {
			isVulnerable = true
		}
		if isVulnerable {
			currentCVEs = append(currentCVEs, reCVE.FindAllString(line, -1)...)
		}
	}
	saveBlock()

	out := make([]string, 0, len(labels))
	for l := range labels {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// ParseFindings 提取结构化漏洞详情
// 两段式: 先按端口上下文切出脚本块，再逐块解析字段
func ParseFindings(scanResult string) []model.VulnFinding {
	var findings []model.VulnFinding
	currentPort := ""
	currentService := ""

	lines := strings.Split(scanResult, "\n")
	i := 0
	for i < len(lines) {
		line := lines[i]

		if m := rePortLine.FindStringSubmatch(line); m != nil {
			currentPort = m[1]
			currentService = m[2]
			i++
			continue
		}
		if strings.Contains(line, "Host script results:") {
			currentPort = "host"
			currentService = ""
			i++
			continue
		}

		m := reScriptHeader.FindStringSubmatch(line)
		if m == nil {
			i++
			continue
		}
		scriptName := m[1]

		// 收块: 到下一个脚本头/端口行/非 NSE 行为止
		var blockLines []string
		i++
		for i < len(lines) {
			l := lines[i]
			if rePortPrefix.MatchString(l) || strings.Contains(l, "Host script results:") {
				break
			}
			if reScriptHeader.MatchString(l) {
				break
			}
			if !strings.HasPrefix(l, "|") {
				break
			}
			blockLines = append(blockLines, l)
			i++
		}

		if f, ok := parseBlock(scriptName, blockLines, currentPort, currentService); ok {
			findings = append(findings, f)
		}
	}
	return findings
}

// parseBlock 解析单个 NSE 脚本块
func parseBlock(scriptName string, blockLines []string, port, service string) (model.VulnFinding, bool) {
	f := model.VulnFinding{
		Port:    port,
		Service: service,
		Script:  scriptName,
	}
	var descLines []string
	inRefs := false
	gotTitle := false

	for _, line := range blockLines {
		stripped := strings.TrimSpace(reBlockPrefix.ReplaceAllString(line, ""))

		if m := reState.FindStringSubmatch(line); m != nil {
			f.State = model.VulnState(m[1])
			inRefs = false
			continue
		}
		if stripped == "VULNERABLE:" || stripped == "LIKELY VULNERABLE:" {
			continue
		}
		if strings.Contains(stripped, "NOT VULNERABLE") {
			return model.VulnFinding{}, false
		}

		if cves := reCVE.FindAllString(line, -1); len(cves) > 0 {
			f.CVEs = append(f.CVEs, cves...)
			continue
		}
		if strings.HasPrefix(stripped, "IDs:") {
			continue
		}
		if m := reRisk.FindStringSubmatch(stripped); m != nil {
			f.Risk = strings.TrimSpace(m[1])
			inRefs = false
			continue
		}
		if m := reDisclosure.FindStringSubmatch(stripped); m != nil {
			f.DisclosureDate = strings.TrimSpace(m[1])
			inRefs = false
			continue
		}
		if stripped == "References:" {
			inRefs = true
			continue
		}
		if inRefs && (strings.Contains(stripped, "http://") || strings.Contains(stripped, "https://")) {
			f.References = append(f.References, stripped)
			continue
		}
		if strings.HasPrefix(stripped, "State:") {
			continue
		}

		// 第一个有内容的行当标题，其余归描述
		if !gotTitle && stripped != "" {
			f.Title = stripped
			gotTitle = true
			continue
		}
		if gotTitle && !inRefs && stripped != "" {
			descLines = append(descLines, stripped)
		}
	}

	// 没有确认状态的块不算发现
	if f.State == "" {
		return model.VulnFinding{}, false
	}
	f.CVEs = dedupe(f.CVEs)
	f.Description = strings.Join(descLines, " ")
	return f, true
}

// dedupe 保序去重 (CVE 会同时出现在 IDs 行和 References 里)
func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
