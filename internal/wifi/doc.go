// Package wifi manages the wireless link that carries the broker session.
//
// A Link drives a Driver through one association: activate the interface,
// associate with the access point, then poll status at a fixed interval
// until a terminal status is seen or the attempt budget runs out. The link
// never retries on its own; retry decisions belong to the supervisor.
//
// Drivers are narrow adapters over the platform's WiFi stack. Two are
// provided: wpacli (wpa_supplicant via wpa_cli) and hostif (an interface
// the host already manages, for wired development boards and containers).
//
// Status codes use the common embedded WLAN convention:
//
//	 0 idle      1 connecting   2 associated without IP   3 got IP
//	-1 failed   -2 no AP found  -3 wrong password
//
// A status is terminal when it is negative or at least StatusGotIP.
package wifi
