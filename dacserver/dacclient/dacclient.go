package dacclient

import (
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/BertoldVdb/max517/dacserver/api"
)

// DACClient talks to one DAC exported by dacserver. Unlike the local
// controller, every operation can also fail with a network error.
type DACClient struct {
	client http.Client
	url    string

	info api.Info
}

func New(url string) (*DACClient, error) {
	c := &DACClient{
		client: http.Client{
			Timeout: 10 * time.Second,
		},

		url: url,
	}

	infoRaw, err := c.doReq("GET", "info", nil)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(infoRaw, &c.info); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *DACClient) doReq(method string, endpoint string, query url.Values) ([]byte, error) {
	u := c.url + "/" + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequest(method, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("request error %s", resp.Status)
	}

	return ioutil.ReadAll(io.LimitReader(resp.Body, 8192))
}

func (c *DACClient) do(endpoint string, query url.Values) (bool, error) {
	raw, err := c.doReq("POST", endpoint, query)
	if err != nil {
		return false, err
	}

	var result api.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return false, err
	}

	return result.Ack, nil
}

func powerDownQuery(powerDownAfter bool) url.Values {
	q := url.Values{}
	if powerDownAfter {
		q.Set("powerdown", "1")
	}
	return q
}

func (c *DACClient) ResetOutput(powerDownAfter bool) (bool, error) {
	return c.do("reset", powerDownQuery(powerDownAfter))
}

func (c *DACClient) SetOutput(value uint8, powerDownAfter bool) (bool, error) {
	q := powerDownQuery(powerDownAfter)
	q.Set("value", strconv.Itoa(int(value)))
	return c.do("set", q)
}

// SetVoltage sets the output in millivolts for a device running from vrefMV.
func (c *DACClient) SetVoltage(mv int, vrefMV int, powerDownAfter bool) (bool, error) {
	q := powerDownQuery(powerDownAfter)
	q.Set("mv", strconv.Itoa(mv))
	q.Set("vref", strconv.Itoa(vrefMV))
	return c.do("voltage", q)
}

func (c *DACClient) PowerDown() (bool, error) {
	return c.do("powerdown", nil)
}

func (c *DACClient) PowerUp() (bool, error) {
	return c.do("powerup", nil)
}

func (c *DACClient) Path() string {
	return c.info.Path
}

func (c *DACClient) Address() uint16 {
	return c.info.Address
}

func (c *DACClient) Close() error {
	return nil
}
