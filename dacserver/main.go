package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BertoldVdb/go-misc/httplog"
	"github.com/BertoldVdb/go-misc/logrusconfig"
	"github.com/BertoldVdb/max517/dac/dacopen"
	"github.com/BertoldVdb/max517/dacserver/api"
	"github.com/BertoldVdb/max517/dacserver/discovery"
	"github.com/sirupsen/logrus"
)

func main() {
	apiKey := flag.String("apikey", "", "API key to use")
	address := flag.String("addr", ":8067", "Address to listen on")
	announce := flag.String("announce", "", "Announce the server via mDNS on this interface ('*' for all)")
	name := flag.String("name", "max517", "Instance name used for mDNS")
	logrusconfig.InitParam()

	flag.Parse()

	log := logrusconfig.GetLogger(logrus.InfoLevel).WithField("prefix", "dacserver")

	if *apiKey != "" {
		user, pass := authCredentials(*apiKey, "example", time.Now().AddDate(10, 0, 0))
		log.Infof("Password for username '%s': %s", user, pass)
	}

	closeChan := make(chan os.Signal, 1)
	signal.Notify(closeChan, os.Interrupt)

	var mux http.ServeMux
	var paths []string

	// All devices are driven from this process, one transaction at a time.
	var busLock sync.Mutex

	for _, m := range flag.Args() {
		log.Infof("Initializing DAC '%s':", m)

		dev, bus, err := dacopen.Open(m, log.WithField("dac", m).Debugf)
		if err != nil {
			log.Errorf(" -> Failed to open: %v", err)
			continue
		}
		defer bus.Close()

		log.Info(" -> DAC ready: ", dev)

		api, err := api.New(dev, m, &busLock)
		if err != nil {
			log.Error(" -> Failed to create API: ", err)
			return
		}

		index := strconv.Itoa(len(paths))
		log.Infof(" -> Registering as '%s'", index)
		mux.Handle("/"+index+"/", http.StripPrefix("/"+index, api))

		paths = append(paths, m)
	}

	if len(paths) == 0 {
		log.Error("No devices available")
		return
	}

	pathJson, err := json.MarshalIndent(&paths, "", "  ")
	if err != nil {
		log.Error(err)
		return
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(pathJson)
	})

	logger := httplog.HTTPLog{
		LogOut:     log.Infof,
		ServerName: "MAX517",
	}

	server := &http.Server{
		Addr:    *address,
		Handler: logger.GetHandler(http.HandlerFunc(authRequired(&mux, *apiKey).ServeHTTP)),

		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       30 * time.Second,
		ReadHeaderTimeout: 30 * time.Second,
	}

	if *announce != "" {
		port, err := listenPort(*address)
		if err != nil {
			log.Error("Failed to announce: ", err)
			return
		}

		iface := *announce
		if iface == "*" {
			iface = ""
		}

		announcer := discovery.NewAnnouncer(*name, *name, port, len(paths))
		if err := announcer.Start(iface); err != nil {
			log.Error("Failed to announce: ", err)
			return
		}
		defer announcer.Stop()
	}

	go func() {
		log.Infof("Starting server on: http://%s", *address)
		log.Info("Server stopped: ", server.ListenAndServe())

		select {
		case closeChan <- nil:
		default:
		}
	}()

	<-closeChan
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	server.Shutdown(ctx)
	cancel()
}

func listenPort(address string) (int, error) {
	_, port, err := net.SplitHostPort(address)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(port)
}

// authCredentials returns a basic-auth user/password pair valid until expiry.
// The password is an HMAC of the user name, so the server stores no accounts.
func authCredentials(key string, label string, expiry time.Time) (string, string) {
	user := strconv.FormatInt(expiry.Unix(), 10)
	if label != "" {
		user += "$" + label
	}

	return user, hex.EncodeToString(authMAC(key, user))
}

func authMAC(key string, user string) []byte {
	h := hmac.New(sha256.New, []byte(key))
	h.Write([]byte(user))
	return h.Sum(nil)
}

func authValid(key string, r *http.Request, now time.Time) bool {
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}

	mac, err := hex.DecodeString(pass)
	if err != nil || subtle.ConstantTimeCompare(mac, authMAC(key, user)) != 1 {
		return false
	}

	expiry, err := strconv.ParseInt(strings.SplitN(user, "$", 2)[0], 10, 64)
	return err == nil && now.Unix() <= expiry
}

// authRequired rejects requests without valid credentials. An empty key
// disables authentication.
func authRequired(next http.Handler, key string) http.Handler {
	if key == "" {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authValid(key, r, time.Now()) {
			w.Header().Set("WWW-Authenticate", `Basic realm="MAX517"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
