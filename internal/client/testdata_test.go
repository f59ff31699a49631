package client

// cuiabaResponse is a trimmed provider response for a point inside Cuiabá.
const cuiabaResponse = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {
        "feature_type": "street",
        "name": "Avenida Fernando Corrêa da Costa",
        "full_address": "Avenida Fernando Corrêa da Costa, Cuiabá - Mato Grosso, 78060, Brasil",
        "context": {
          "neighborhood": {"name": "Boa Esperança"},
          "place": {"name": "Cuiabá"},
          "region": {"name": "Mato Grosso", "region_code": "MT"},
          "country": {"name": "Brasil", "country_code": "br"},
          "postcode": {"name": "78060"}
        }
      }
    },
    {
      "type": "Feature",
      "properties": {"feature_type": "place", "name": "Várzea Grande"}
    }
  ]
}`

const emptyResponse = `{"type":"FeatureCollection","features":[]}`
