package render

import "html/template"

var slideTemplates = template.Must(template.New("slide").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width={{.Canvas.Width}}, height={{.Canvas.Height}}">
<title>{{.Title}}</title>
<style>
*{box-sizing:border-box;margin:0;padding:0}
html,body{width:{{.Canvas.Width}}px;height:{{.Canvas.Height}}px;overflow:hidden;background:{{.Theme.Background}};font-family:{{.Theme.Font}}}
.slide{position:relative;width:{{.Canvas.Width}}px;height:{{.Canvas.Height}}px;overflow:hidden;background:{{.Theme.Surface}};color:{{.Theme.Text}}}
.cover{display:flex;flex-direction:column;align-items:center;justify-content:center;text-align:center;background:{{.Theme.Background}};color:#fff}
.cover h1{font-size:60px;line-height:1.15;max-width:1000px;max-height:280px;overflow:hidden}
.cover .sub{margin-top:28px;font-size:26px;color:{{.Theme.Accent}};max-width:900px;max-height:120px;overflow:hidden}
.motif{position:absolute;border-radius:50%;border:18px solid {{.Theme.Accent}};opacity:.25}
.motif.a{width:420px;height:420px;left:-140px;top:-160px}
.motif.b{width:300px;height:300px;right:-90px;bottom:-110px}
.bar{position:absolute;left:0;top:0;width:14px;height:100%;background:{{.Theme.Accent}}}
.head{position:absolute;left:72px;top:48px;right:72px;height:96px;display:flex;align-items:flex-end;border-bottom:3px solid {{.Theme.Primary}}}
.head h2{font-size:40px;line-height:1.2;color:{{.Theme.Primary}};max-height:96px;overflow:hidden}
.body{position:absolute;left:72px;right:72px;top:172px;bottom:72px;display:flex;gap:48px}
.text{flex:1;overflow:hidden}
.text li{font-size:26px;line-height:1.45;margin:0 0 16px 28px}
.visual{flex:0 0 480px;display:flex;align-items:center;justify-content:center;overflow:hidden}
.visual img{max-width:480px;max-height:440px;width:480px;height:440px;object-fit:cover;border-radius:12px}
.toc ol{list-style:none;columns:2;column-gap:56px}
.toc li{font-size:28px;line-height:1.4;margin-bottom:20px;break-inside:avoid}
.toc .num{display:inline-block;width:56px;color:{{.Theme.Accent}};font-weight:700}
.foot{position:absolute;right:40px;bottom:24px;font-size:16px;color:{{.Theme.Muted}}}
</style>
</head>
<body>
{{- if eq .Layout "cover"}}
<div class="slide cover">
  <div class="motif a"></div><div class="motif b"></div>
  <h1>{{.Title}}</h1>
  {{- if .Bullets}}<p class="sub">{{index .Bullets 0}}</p>{{end}}
</div>
{{- else if eq .Layout "toc"}}
<div class="slide toc">
  <div class="bar"></div>
  <div class="head"><h2>{{.Title}}</h2></div>
  <div class="body"><ol>
    {{- range $i, $b := .Bullets}}
    <li><span class="num">{{printf "%02d" (inc $i)}}</span>{{$b}}</li>
    {{- end}}
  </ol></div>
  {{template "footer" .}}
</div>
{{- else}}
<div class="slide content">
  <div class="bar"></div>
  <div class="head"><h2>{{.Title}}</h2></div>
  <div class="body">
    <div class="text"><ul>
      {{- range .Bullets}}
      <li>{{.}}</li>
      {{- end}}
    </ul></div>
    {{- if eq .Layout "split"}}
    <div class="visual"><img src="{{.Visual}}" alt="{{.Title}}" width="480" height="440" class="slide-visual"></div>
    {{- end}}
  </div>
  {{template "footer" .}}
</div>
{{- end}}
</body>
</html>
{{define "footer"}}<div class="foot">{{.Index}}</div>{{end}}`))
