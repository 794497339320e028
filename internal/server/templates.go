package server

import "html/template"

// completePageHTML is shown in the popup once the login finished. The opener
// closes the popup on its own; the script covers popups left open when the
// opener was navigated away.
const completePageHTML = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Sign-in</title>
<style nonce="{{.Nonce}}">body{font-family:system-ui,sans-serif;margin:3rem;text-align:center;color:#222}</style>
</head>
<body>
<p id="status">Finishing sign-in&hellip;</p>
<script nonce="{{.Nonce}}">
(function () {
  var params = new URLSearchParams(window.location.hash.slice(1));
  var ok = params.get({{.MarkerKey}}) === "ok";
  document.getElementById("status").textContent = ok
    ? "Signed in. You can close this window."
    : "Sign-in failed. You can close this window and try again.";
  if (!window.opener) { setTimeout(function () { window.close(); }, 1500); }
})();
</script>
</body>
</html>
`

// CompletePageData is the data for the completion page
type CompletePageData struct {
	Nonce     string
	MarkerKey string
}

var completePageTemplate = template.Must(template.New("complete").Parse(completePageHTML))
