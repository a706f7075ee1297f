package vuln

// HTTP 端口的探测脚本按批次拆分。低端 CPU (MIPS 路由器等) 上一次
// 跑完整 56 个 http 脚本会直接饿死产出空结果，分批后可用。
// 非 HTTP 端口直接跑 --script vuln 全集，单次调用。

// ScriptBatch 一个按批执行的脚本组
type ScriptBatch struct {
	Name          string // 批次名 (日志/状态展示)
	Scripts       string // --script 参数 (逗号分隔)
	ScriptTimeout int    // --script-timeout 秒数
}

// HTTPVulnBatches HTTP 端口的四个固定批次
var HTTPVulnBatches = []ScriptBatch{
	{
		Name: "CVE checks",
		Scripts: "http-vuln-cve2006-3392,http-vuln-cve2009-3960,http-vuln-cve2010-0738," +
			"http-vuln-cve2010-2861,http-vuln-cve2011-3192,http-vuln-cve2011-3368," +
			"http-vuln-cve2012-1823,http-vuln-cve2013-0156,http-vuln-cve2013-6786," +
			"http-vuln-cve2013-7091,http-vuln-cve2014-2126,http-vuln-cve2014-2127," +
			"http-vuln-cve2014-2128,http-vuln-cve2014-2129,http-vuln-cve2014-3704," +
			"http-vuln-cve2014-8877,http-vuln-cve2015-1427,http-vuln-cve2015-1635," +
			"http-vuln-cve2017-1001000,http-vuln-cve2017-5638",
		ScriptTimeout: 30,
	},
	{
		Name: "Backdoor and device checks",
		Scripts: "http-vuln-cve2017-5689,http-vuln-cve2017-8917,http-vuln-misfortune-cookie," +
			"http-vuln-wnr1000-creds,http-shellshock,http-git,http-passwd," +
			"http-dlink-backdoor,http-huawei-hg5xx-vuln,http-tplink-dir-traversal," +
			"http-vmware-path-vuln,http-phpmyadmin-dir-traversal,http-iis-webdav-vuln," +
			"http-frontpage-login,http-adobe-coldfusion-apsa1301,http-avaya-ipoffice-users," +
			"http-awstatstotals-exec,http-axis2-dir-traversal",
		ScriptTimeout: 30,
	},
	{
		Name: "Discovery and config checks",
		Scripts: "http-enum,http-cookie-flags,http-cross-domain-policy,http-trace," +
			"http-internal-ip-disclosure,http-aspnet-debug,http-jsonp-detection," +
			"http-method-tamper,http-litespeed-sourcecode-download," +
			"http-majordomo2-dir-traversal,http-wordpress-users,http-phpself-xss",
		ScriptTimeout: 30,
	},
	{
		// 爬虫类脚本更重，单独放宽脚本超时
		Name: "Crawler checks",
		Scripts: "http-csrf,http-dombased-xss,http-stored-xss,http-sql-injection," +
			"http-slowloris-check,http-fileupload-exploiter",
		ScriptTimeout: 60,
	},
}

// RegularBatch 非 HTTP 端口的全集批次
var RegularBatch = ScriptBatch{
	Name:          "Full vuln set",
	Scripts:       "vuln",
	ScriptTimeout: 30,
}

// DefaultHTTPPorts 按 HTTP 方式扫描的默认端口
var DefaultHTTPPorts = []int{80, 443, 8080, 8443}
