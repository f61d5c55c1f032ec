// Command canbridge ingests CAN frames carried over UDP, decodes them
// against a loaded DBC database, and republishes whitelisted frames to MQTT
// as JSON and non-whitelisted frames as raw hex text lines.
package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/astuff/can-dbc-loader/base"
	"github.com/astuff/can-dbc-loader/can"
	"github.com/astuff/can-dbc-loader/dbc"
	"github.com/astuff/can-dbc-loader/rwmap"
	"github.com/astuff/can-dbc-loader/whitelist"

	"github.com/eclipse/paho.golang/packets"
	"github.com/eclipse/paho.golang/paho"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

var DbcContent []byte

const (
	BufSize    = 8 * 1024
	HeaderLen  = 8
	ConfigPath = "./config.json"
)

// msg type carried in the UDP header.
const (
	ETHSendFrame = iota + 1
	CanMirrorToETH
)

type PDUMapType map[uint32]can.PDU

type RecvData struct {
	RecvTime int64
	Data     []byte
}

var (
	CanDataChan   = make(chan RecvData, base.GConfig.DataChanSize)
	MergedPDUChan = make(chan []can.PDU, base.GConfig.DataChanSize)
	signals       = make(chan os.Signal, 1)
	done          = make(chan struct{})
)

var (
	wg  sync.WaitGroup
	log = base.Logger

	db      *dbc.Database
	wl      *whitelist.WhiteList
	decoder *can.Decoder
)

var (
	totalFrames, totalLoseUDP, totalLoseCAN, totalLoseMerge atomic.Int64
	totalMerged                                             atomic.Int64
)

func init() {
	log.SetReportCaller(true)

	switch base.GConfig.Format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: base.TimestampFormat,
		})
	case "text":
		fallthrough
	default:
		log.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: base.TimestampFormat,
		})
	}
}

func main() {
	if !loadConfig() {
		return
	}
	fmt.Println("Load config success")

	logFile, err := initLog()
	if logFile != nil {
		defer logFile.Close()
	}
	if err != nil {
		os.Exit(1)
	}
	log.Debugln("Init log success")

	var loadErr error
	if base.GConfig.EmbedDBC {
		db, loadErr = loadEmbedDBC()
	} else {
		db, loadErr = loadDBC()
	}
	if loadErr != nil {
		log.Errorln("load DBC failed:", loadErr)
		os.Exit(1)
	}
	log.Debugln("Load DBC success")

	wl = whitelist.New(db)
	if err := wl.Init(base.GConfig.WhiteListFile, &wg, base.GConfig.EnableWhiteList); err != nil {
		log.Errorln(err)
		return
	}
	decoder = can.NewDecoder(db, wl)

	if base.GConfig.TestMode {
		startPProf(&base.GConfig.PProf)
	}

	signal.Notify(signals, os.Interrupt)
	wg.Add(1)
	go handleQuit(&wg)

	client := initMQTT()
	defer client.Disconnect(&paho.Disconnect{ReasonCode: 0})

	wg.Add(1)
	go startHttpServer(&wg)

	if base.GConfig.CalcFrameRate {
		ticker := calcFrameRate(base.GConfig.CalcFrameRateInterval)
		defer ticker.Stop()
	}

	for i := 0; i < base.GConfig.WorkRoutines; i++ {
		wg.Add(1)
		go handleData(client)
	}

	go readData()

	wg.Wait()
}

func calcFrameRate(interval int) *time.Ticker {
	t := time.NewTicker(time.Duration(interval) * time.Second)

	go func() {
		for range t.C {
			log.Infof("%.1f fps", float64(totalFrames.Load())/float64(interval))
			totalFrames.Store(0)
		}
	}()

	return t
}

type PDUPool struct {
	pool *sync.Pool
}

func NewPDUPool(cap int) *PDUPool {
	return &PDUPool{
		pool: &sync.Pool{
			New: func() any {
				buffer := make([]can.PDU, 0, cap)
				return &buffer
			},
		},
	}
}

func (p *PDUPool) Get() *[]can.PDU    { return p.pool.Get().(*[]can.PDU) }
func (p *PDUPool) Put(obj *[]can.PDU) { p.pool.Put(obj) }

func readData() {
	udpHandle, err := initInterface()
	if err != nil {
		log.Fatalln(err)
	}
	defer udpHandle.Close()

	specialCANMap := rwmap.NewRWMap(128)
	for _, canID := range base.GConfig.SpecialCANs {
		specialCANMap.Set(int64(canID), true)
	}

	pduPool := NewPDUPool(32)
	pduChan := make(chan *[]can.PDU, base.GConfig.DataChanSize)
	for i := 0; i < base.GConfig.DecodeUdpRoutines; i++ {
		go decodeUdpDataLoop(CanDataChan, pduChan, specialCANMap, pduPool)
	}

	var oldest, reset int64
	pduMap := make(PDUMapType, 2*1024)
	go mergeFrameLoop(pduChan, &pduMap, pduPool, &oldest, &reset)

	buf := make([]byte, 2*1024)
	var readErrCnt int
	for {
		n, addr, err := udpHandle.ReadFrom(buf)
		if err != nil {
			if err == io.EOF {
				continue
			}
			readErrCnt++
			if readErrCnt <= 10 {
				log.Errorln(err, addrNetwork(addr), addrString(addr))
			}
			udpHandle, _ = initInterface()
			continue
		}
		readErrCnt = 0

		if n <= 0 {
			continue
		}

		recvData := RecvData{RecvTime: time.Now().UnixMicro(), Data: append([]byte(nil), buf[:n]...)}

		select {
		case CanDataChan <- recvData:
		default:
			totalLoseUDP.Add(1)
		}
	}
}

func addrNetwork(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.Network()
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}

func initInterface() (net.PacketConn, error) {
	cfg := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			return c.Control(func(fd uintptr) {
				syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, unix.SO_REUSEADDR, 1)
				syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
		},
	}

	conn, err := cfg.ListenPacket(context.Background(), "udp", base.GConfig.UdpServer.Host)
	if err != nil {
		return nil, err
	}
	log.Debugf("listening on %s", base.GConfig.UdpServer.Host)
	return conn, nil
}

func handleData(client *paho.Client) {
	for mergedPdus := range MergedPDUChan {
		parseAndPublish(mergedPdus, client)
	}
	log.Debugln("handleData quit")
}

func decodeUdpDataLoop(dataChan <-chan RecvData, outChan chan<- *[]can.PDU, specialCANMap *rwmap.RWMap, pduPool *PDUPool) {
	for data := range dataChan {
		if len(data.Data) <= 0 {
			continue
		}

		allPdu := decodeUdpData(data.Data, data.RecvTime, specialCANMap, pduPool)
		if len(*allPdu) <= 0 {
			pduPool.Put(allPdu)
			continue
		}

		select {
		case outChan <- allPdu:
		default:
			totalLoseCAN.Add(int64(len(*allPdu)))
		}
	}
}

func decodeUdpData(data []byte, timeStamp int64, specialCANMap *rwmap.RWMap, pduPool *PDUPool) *[]can.PDU {
	allPdu := pduPool.Get()
	*allPdu = (*allPdu)[:0]

	if len(data) <= HeaderLen {
		log.Errorf("invalid data: len %d", len(data))
		return allPdu
	}

	msgType := data[2]
	if msgType != CanMirrorToETH {
		log.Errorf("unknown msg type %d", msgType)
		return allPdu
	}

	pdus := data[HeaderLen:]
	for len(pdus) > 0 {
		if len(pdus) < can.PduHeaderLen {
			log.Errorf("invalid data: remaining %d bytes shorter than header", len(pdus))
			break
		}

		var pdu can.PDU
		pdu.Timestamp = timeStamp
		pdu.UdpTimeStamp = binary.BigEndian.Uint64(pdus[:can.TimeStampLen])
		pdu.CanId = binary.BigEndian.Uint32(pdus[can.TimeStampLen : can.TimeStampLen+can.CanIdLen])
		pdu.BusId = pdus[can.TimeStampLen+can.CanIdLen]
		pdu.Direction = pdus[can.PduHeaderLen-can.LengthLen-can.DirectionLen]
		pdu.PayloadLen = binary.BigEndian.Uint16(pdus[can.PduHeaderLen-can.LengthLen : can.PduHeaderLen])
		pduLen := can.PduHeaderLen + int(pdu.PayloadLen)

		if len(pdus) < pduLen {
			log.Errorf("invalid data: want %d bytes, have %d, canId %d", pduLen, len(pdus), pdu.CanId)
			break
		}
		pdu.Payload = pdus[can.PduHeaderLen:pduLen]
		pdus = pdus[pduLen:]

		totalFrames.Add(1)

		if base.GConfig.Bidirection {
			*allPdu = append(*allPdu, pdu)
		} else {
			switch pdu.Direction {
			case can.DirRecv:
				*allPdu = append(*allPdu, pdu)
			case can.DirSend:
				if _, ok := specialCANMap.Get(int64(pdu.CanId)); ok {
					*allPdu = append(*allPdu, pdu)
				}
			default:
				log.Errorf("unknown direction %d for canId %d", pdu.Direction, pdu.CanId)
			}
		}
	}

	return allPdu
}

func mergeFrameLoop(dataChan <-chan *[]can.PDU, pduMap *PDUMapType, pduPool *PDUPool, oldest, reset *int64) {
	for data := range dataChan {
		mergedPdus := mergeFrame(data, pduMap, pduPool, oldest, reset)
		if len(mergedPdus) <= 0 {
			continue
		}

		select {
		case MergedPDUChan <- mergedPdus:
		default:
			totalLoseMerge.Add(int64(len(mergedPdus)))
		}
	}
}

func mergeFrame(inPdus *[]can.PDU, pduMap *PDUMapType, pduPool *PDUPool, oldest, reset *int64) (outPdus []can.PDU) {
	defer pduPool.Put(inPdus)

	if len(*inPdus) == 0 {
		return nil
	}

	latest := (*inPdus)[0].Timestamp
	if (latest - *oldest) >= int64(base.GConfig.FilterInterval*1000) {
		for _, v := range *pduMap {
			totalMerged.Add(1)
			outPdus = append(outPdus, v)
		}

		if (latest - *reset) >= int64(base.GConfig.ResetMapInterval) {
			*pduMap = PDUMapType{}
			*reset = latest
		} else {
			for k := range *pduMap {
				delete(*pduMap, k)
			}
		}
		*oldest = latest
	}

	for _, pdu := range *inPdus {
		(*pduMap)[pdu.CanId] = pdu
	}

	return outPdus
}

func parseAndPublish(mergedPdus []can.PDU, client *paho.Client) {
	whiteListData, otherData := decoder.ParseToJson(mergedPdus)

	if len(whiteListData) > 0 {
		if _, err := client.Publish(context.Background(), &paho.Publish{
			Topic:   base.GConfig.WhiteList.Topic,
			QoS:     byte(base.GConfig.WhiteList.Qos),
			Retain:  base.GConfig.WhiteList.Retained,
			Payload: whiteListData,
		}); err != nil {
			log.Errorln("whitelist publish error:", err)
		}
	}

	if len(otherData) > 0 {
		if _, err := client.Publish(context.Background(), &paho.Publish{
			Topic:   base.GConfig.NonWhiteList.Topic,
			QoS:     byte(base.GConfig.NonWhiteList.Qos),
			Retain:  base.GConfig.NonWhiteList.Retained,
			Payload: otherData,
		}); err != nil {
			log.Errorln("non-whitelist publish error:", err)
		}
	}
}

func handleQuit(wg *sync.WaitGroup) {
	defer wg.Done()

	<-signals
	log.Infof("received interrupt: totalFrames(%d) totalLoseUDP(%d) totalLoseCAN(%d) totalLoseMerge(%d) totalMerged(%d)",
		totalFrames.Load(), totalLoseUDP.Load(), totalLoseCAN.Load(), totalLoseMerge.Load(), totalMerged.Load())

	time.Sleep(5 * time.Second)
	close(done)
	os.Exit(0)
}

func loadConfig() bool {
	jData, err := os.ReadFile(ConfigPath)
	if err != nil {
		fmt.Println(err)
		return false
	}

	if err := json.Unmarshal(jData, base.GConfig); err != nil {
		fmt.Println(err)
		return false
	}
	return true
}

func loadDBC() (*dbc.Database, error) {
	f, err := os.Open(base.GConfig.DBCPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return dbc.NewParser(f).Parse()
}

func loadEmbedDBC() (*dbc.Database, error) {
	if len(DbcContent) == 0 {
		return nil, errors.New("no embedded DBC content")
	}
	return dbc.NewParser(bytes.NewReader(DbcContent)).Parse()
}

func initLog() (io.ReadWriteCloser, error) {
	if len(os.Args) < 1 {
		return nil, errors.New("invalid args")
	}

	var logFile *os.File
	var err error
	if base.GConfig.LogToFile {
		if err = os.MkdirAll("./log", os.ModePerm); err != nil {
			return nil, err
		}

		logName := "./log/" + filepath.Base(os.Args[0])
		strTime := time.Now().Format(base.TimestampFormat)
		strTime = strings.ReplaceAll(strTime, ":", "_")
		logName += "." + strTime + ".log"

		logFile, err = os.OpenFile(logName, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o666)
		if err != nil {
			return nil, err
		}
		fmt.Printf("opened %s\n", logName)
		log.SetOutput(logFile)
	}

	level, err := logrus.ParseLevel(base.GConfig.LogLevel)
	if err != nil {
		fmt.Println("ParseLevel failed:", base.GConfig.LogLevel, err)
		return logFile, err
	}
	log.SetLevel(level)

	return logFile, nil
}

func startPProf(pprof *base.PProf) {
	server := &HttpServer{
		Server: &http.Server{
			Addr:    pprof.Addr,
			Handler: nil,
		},
	}

	go server.WaitExitSignal(pprof.Timeout * time.Second)
	go func(server *HttpServer) {
		if err := server.ListenAndServe(); err != nil {
			log.Errorln("unexpected error from ListenAndServe:", err)
		}
		log.Debugln("pprof server exited")
	}(server)
}

func initMQTT() *paho.Client {
	tcpConn, err := net.Dial("tcp", base.GConfig.Broker)
	if err != nil {
		log.Fatalln("failed to connect to", base.GConfig.Broker, "reason:", err)
	}
	log.Debugln("connected to", base.GConfig.Broker)

	tcpConn = packets.NewThreadSafeConn(tcpConn)

	client := paho.NewClient(paho.ClientConfig{
		Conn: tcpConn,
	})

	cp := &paho.Connect{
		KeepAlive:  30,
		ClientID:   base.GConfig.Clientid,
		CleanStart: true,
		Username:   base.GConfig.Username,
		Password:   []byte(base.GConfig.Password),
	}
	if base.GConfig.Username != "" {
		cp.UsernameFlag = true
	}
	if base.GConfig.Password != "" {
		cp.PasswordFlag = true
	}

	ca, err := client.Connect(context.Background(), cp)
	if err != nil {
		log.Fatalln(err)
	}
	if ca.ReasonCode != 0 {
		log.Fatalf("failed to connect to %s: %d - %s", base.GConfig.Broker, ca.ReasonCode, ca.Properties.ReasonString)
	}

	log.Debugf("MQTT connected to %s", base.GConfig.Broker)
	return client
}

func startHttpServer(wg *sync.WaitGroup) {
	defer wg.Done()
	http.HandleFunc(base.GConfig.HttpServer.HealthCheckURI, Pong)
	http.Handle(base.GConfig.HttpServer.WhiteListURI, wl)
	http.ListenAndServe(base.GConfig.HttpServer.ServerAddr, nil)
}

func Pong(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
