package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// preloadScriptTemplate is the IIFE served at PreloadPath: it issues a
// same-origin GET for each preload URL, running immediately if the
// document has already finished parsing and on DOMContentLoaded
// otherwise.
const preloadScriptTemplate = `(function(){
  var urls = %s;
  function go(){
    urls.forEach(function(u){
      fetch(u, {method:"GET", credentials:"same-origin", cache:"default"});
    });
  }
  if (document.readyState === "loading") {
    document.addEventListener("DOMContentLoaded", go);
  } else {
    go();
  }
})();`

func preloadScript(mounts []string) *Result {
	urls, _ := json.Marshal(mounts)
	body := fmt.Sprintf(preloadScriptTemplate, urls)

	header := make(http.Header)
	header.Set("Content-Type", "application/javascript; charset=utf-8")
	header.Set("Cache-Control", "public, max-age=300")

	return &Result{StatusCode: http.StatusOK, Header: header, Body: []byte(body)}
}
