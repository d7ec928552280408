// Package cvrender 把用户资料渲染为 A4 CV，并通过无头 Chromium 导出 PDF。
package cvrender

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	"prepkitty/internal/database"
)

// Employment 是 CV 中的一段工作经历。
type Employment struct {
	Role      string `json:"role"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// CVData 是模板的全部输入。
type CVData struct {
	Name                string
	JobTitle            string
	ProfessionalSummary string
	EmploymentHistory   []Employment
	Skills              string
	AdditionalDetails   string
}

// FromProfile 从数据库记录组装模板数据，EmploymentHistory 为空或无法解析时返回空列表。
func FromProfile(user database.User, profile database.PracticeProfile) (CVData, error) {
	data := CVData{
		Name:                user.Name,
		JobTitle:            profile.JobTitle,
		ProfessionalSummary: profile.ProfessionalSummary,
		Skills:              profile.Skills,
		AdditionalDetails:   profile.AdditionalDetails,
		EmploymentHistory:   []Employment{},
	}
	raw := strings.TrimSpace(string(profile.EmploymentHistory))
	if raw == "" || raw == "null" {
		return data, nil
	}
	if err := json.Unmarshal([]byte(raw), &data.EmploymentHistory); err != nil {
		return data, fmt.Errorf("decode employment history: %w", err)
	}
	return data, nil
}

var cvTemplate = template.Must(template.New("cv").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Name}}</title>
<style>
  @page { size: A4; margin: 0; }
  html, body { margin: 0; padding: 0; background: #fff; }
  .cv { font-family: Arial, sans-serif; color: #333; padding: 40px; box-sizing: border-box; width: 210mm; min-height: 297mm; }
  header { text-align: center; margin-bottom: 40px; }
  h1 { font-size: 36px; margin: 0; }
  .job-title { font-size: 18px; margin: 5px 0; }
  section + section { margin-top: 30px; }
  h2 { font-size: 22px; border-bottom: 2px solid #333; padding-bottom: 5px; margin-bottom: 15px; }
  h3 { font-size: 16px; font-weight: bold; margin: 0; }
  .dates { font-size: 14px; font-style: italic; margin: 5px 0; }
  .job { margin-bottom: 15px; }
  p { font-size: 14px; line-height: 1.6; white-space: pre-line; }
</style>
</head>
<body>
<div class="cv" id="cv-root">
  <header>
    <h1>{{.Name}}</h1>
    <p class="job-title">{{.JobTitle}}</p>
  </header>
  <section>
    <h2>Professional Summary</h2>
    <p>{{.ProfessionalSummary}}</p>
  </section>
  <section>
    <h2>Employment History</h2>
    {{- range .EmploymentHistory}}
    <div class="job">
      <h3>{{.Role}}</h3>
      <p class="dates">{{.StartDate}} - {{.EndDate}}</p>
    </div>
    {{- end}}
  </section>
  <section>
    <h2>Skills</h2>
    <p>{{.Skills}}</p>
  </section>
  <section>
    <h2>Additional Details</h2>
    <p>{{.AdditionalDetails}}</p>
  </section>
</div>
</body>
</html>
`))

// RenderHTML 渲染 CV 页面，所有字段均经 html/template 转义。
func RenderHTML(data CVData) (string, error) {
	var buf bytes.Buffer
	if err := cvTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute cv template: %w", err)
	}
	return buf.String(), nil
}
