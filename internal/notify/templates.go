package notify

import (
	"bytes"
	"fmt"
	"html/template"
)

const (
	testSubject   = "STN 邮件通知功能测试"
	reportSubject = "STN Steam 挂刀情报"

	textFallback = "您的邮箱无法显示 HTML 邮件，请检查安全设置或者更换更加现代化的邮箱系统"

	screenshotCID = "screenshot"
)

var bodyTemplate = template.Must(template.New("body").Parse(`<!DOCTYPE html>
<html lang="zh-CN">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Subject}}</title>
</head>
<body>
    <div style="display: flex; flex-direction: column; align-items: center;">
        <h1 style="font-family: Arial, Helvetica, sans-serif;">{{.Heading}}</h1>
        <p>以下是当前的 Steam 挂刀情报：</p>
        <img src="cid:{{.ScreenshotCID}}" alt="Steam 挂刀情报站的截图，如未显示图像请检查邮箱的相关设置">
        {{- if .DumpName}}
        <p>附件为最新的数据快照：{{.DumpName}}</p>
        {{- end}}
    </div>
</body>
</html>
`))

type bodyData struct {
	Subject       string
	Heading       string
	ScreenshotCID string
	DumpName      string
}

func renderHTML(data bodyData) (string, error) {
	var buf bytes.Buffer
	if err := bodyTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering mail body: %w", err)
	}
	return buf.String(), nil
}
