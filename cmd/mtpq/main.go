package main

import (
	"flag"
	"fmt"
	"os"

	liblog "github.com/droidxfer/go-mtp/log"
	"github.com/droidxfer/go-mtp/mtp"
	"github.com/droidxfer/go-mtp/vfs"
)

var log = liblog.NewChildLogger(liblog.Root, "mtpq", false)

func main() {
	pattern := flag.String("dev", "", "regexp matched against manufacturer/model/serial")
	deviceInfo := flag.Bool("deviceinfo", false, "print the device capability record")
	storages := flag.Bool("storages", false, "list storages")
	ls := flag.String("ls", "", "list the objects at the given path")
	direct := flag.Bool("direct", false, "use the libusb-direct backend instead of gousb")
	mtpDebug := flag.Bool("mtp-debug", false, "log MTP requests and responses")
	usbDebug := flag.Bool("usb-debug", false, "log USB calls")
	dataDebug := flag.Bool("data-debug", false, "hex-dump bulk traffic")
	flag.Parse()

	connect := mtp.Connect
	if *direct {
		connect = mtp.ConnectDirect
	}
	sess, err := connect(*pattern, mtp.DebugFlags{
		MTP:  *mtpDebug,
		USB:  *usbDebug,
		Data: *dataDebug,
	})
	if err != nil {
		log.Errorf("connect: %v", err)
		os.Exit(1)
	}
	defer sess.Close()

	info, err := sess.GetDeviceInfo()
	if err != nil {
		log.Errorf("device info: %v", err)
		os.Exit(1)
	}
	fmt.Printf("%s %s %s\n", info.Manufacturer, info.Model, info.DeviceVersion)

	if *deviceInfo {
		fmt.Println(info)
	}

	if *storages {
		ids, err := sess.GetStorageIDs()
		if err != nil {
			log.Errorf("storages: %v", err)
			os.Exit(1)
		}
		for _, id := range ids {
			si, err := sess.GetStorageInfo(id)
			if err != nil {
				log.Errorf("storage 0x%x: %v", id, err)
				continue
			}
			fmt.Printf("0x%-8x volume: %s, description: %s\n",
				id, si.VolumeLabel, si.StorageDescription)
		}
	}

	if *ls != "" {
		fs := vfs.New(sess)
		err := fs.List(*ls, func(e vfs.Entry) error {
			name := e.Name
			if e.IsDir() {
				name += "/"
			}
			fmt.Printf("%-10d %10d %s\n", e.Handle, e.Size, name)
			return nil
		})
		if err != nil {
			log.Errorf("ls %s: %v", *ls, err)
			os.Exit(1)
		}
	}
}
