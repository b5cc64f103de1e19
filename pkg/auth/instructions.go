package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowCookieExportGuide explains how to export a Netscape cookie file for
// forums that hide threads behind a login
func ShowCookieExportGuide(w io.Writer) {
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintln(w, "🍪 FORUM COOKIE EXPORT GUIDE")
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Some forum threads only list their attachments to logged in members.")
	fmt.Fprintln(w, "mediagrab reads your browser session from a cookies.txt file.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "🌐 STEP 1: Log in to the forum in your browser")
	fmt.Fprintln(w, "   - Open the thread you want and check that the images show")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "🧩 STEP 2: Install a cookies.txt exporter")
	fmt.Fprintln(w, "   • Chrome/Edge/Brave: \"Get cookies.txt LOCALLY\"")
	fmt.Fprintln(w, "   • Firefox: \"cookies.txt\"")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "💾 STEP 3: Export the cookies of the forum's domain")
	fmt.Fprintln(w, "   - The file must start with '# Netscape HTTP Cookie File'")
	fmt.Fprintln(w, "   - It should contain a session cookie such as xf_user or xf_session")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "▶️  STEP 4: Pass it to mediagrab")
	fmt.Fprintln(w, "   mediagrab scrape --cookies ./cookies.txt https://forum.example/threads/...")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "⚠️  SECURITY WARNING:")
	fmt.Fprintln(w, "   • The file grants full access to your forum account")
	fmt.Fprintln(w, "   • NEVER share it, and delete it when you are done")
	fmt.Fprintln(w, strings.Repeat("=", 80))
}

// ShowAPIKeyGuide explains where to find the API key of a platform
func ShowAPIKeyGuide(w io.Writer, platform string) {
	switch NormalizePlatform(platform) {
	case "pixeldrain":
		fmt.Fprintln(w, "\n🔑 pixeldrain API key")
		fmt.Fprintln(w, "   1. Log in at https://pixeldrain.com")
		fmt.Fprintln(w, "   2. Open Account → API keys and create a key")
		fmt.Fprintln(w, "   3. Store it with: mediagrab auth set pixeldrain")
		fmt.Fprintf(w, "   Or export %s for a single shell\n", EnvVar("pixeldrain"))
	default:
		fmt.Fprintf(w, "\nNo API key guide for %q. Known platforms: %s\n",
			platform, strings.Join(KnownPlatforms, ", "))
	}
}
