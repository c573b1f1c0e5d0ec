// Command xtap is the control CLI for the xtap capture daemon: starting
// and stopping xtapd, toggling capture, inspecting counters, forcing
// flushes, and forwarding video download requests.
package main
